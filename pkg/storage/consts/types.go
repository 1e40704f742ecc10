package consts

const (
	DefaultInfoFile  = "info.json"
	DefaultExportDir = "exports"

	DefaultImageExt = ".jpg"
	DefaultVideoExt = ".avi"

	DefaultFilePerm = 0660
	DefaultDirPerm  = 0750

	DefaultThumbWidth = 320
	DefaultExportFPS  = 5
)
