package utils

import "github.com/mahirjain10/image-optimizer/internal/types"

const pattern = "status"

func InitStatusData(ev types.UploadEvent, status string, destinationPath string, errorMsg string) *types.StatusData {
	return &types.StatusData{
		EventID:         ev.ID,
		Bucket:          ev.Bucket,
		SourcePath:      ev.Path,
		Status:          status,
		DestinationPath: destinationPath,
		ErrorMsg:        errorMsg,
	}
}

func InitStatusMessage(data *types.StatusData) *types.StatusMessage {
	return &types.StatusMessage{Pattern: pattern, Data: *data}
}
