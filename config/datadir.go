package config

import (
	"os"
	"path/filepath"
)

const DataDirEnv = "TLA_SANY_LSP_DIR"

var dataDirPath = ""

func SetDataDirPath(newPath string) {
	// NOTE: the directory is only created by GetOrInitializeDataDir
	dataDirPath = newPath
}

func DataDirPath() string {
	// TLA_SANY_LSP_DIR takes precedence over everything else
	if envPath := os.Getenv(DataDirEnv); len(envPath) != 0 {
		return envPath
	}

	if len(dataDirPath) != 0 {
		return dataDirPath
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		if homeEnv := os.Getenv("HOME"); len(homeEnv) != 0 {
			homeDir = homeEnv
		} else {
			homeDir = os.TempDir()
		}
	}

	return filepath.Join(homeDir, ".tla-sany-lsp")
}

func GetOrInitializeDataDir() (string, error) {
	dirPath := DataDirPath()
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			return "", err
		}
	}

	return dirPath, nil
}
