package main

import (
	"os"
	"path/filepath"

	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/emersion/go-autostart"
)

func autostartApp() (*autostart.App, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, err
	}
	return &autostart.App{
		Name:        "alraed-bells",
		DisplayName: appName,
		Exec:        []string{execPath, "run"},
	}, nil
}

// syncAutostart makes the login item match the configured flag.
func syncAutostart(enable bool, l logger.Logger) error {
	a, err := autostartApp()
	if err != nil {
		return err
	}
	switch {
	case enable && !a.IsEnabled():
		if err := a.Enable(); err != nil {
			return err
		}
		l.Info("[AUTOSTART] enabled")
	case !enable && a.IsEnabled():
		if err := a.Disable(); err != nil {
			return err
		}
		l.Info("[AUTOSTART] disabled")
	}
	return nil
}
