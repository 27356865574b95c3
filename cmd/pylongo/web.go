package main

import (
	"context"
	"fmt"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/internal/web"
	"github.com/cjeanneret/PylonGo/pylon"
)

// serveWeb runs the web UI until ctx ends. Captures started from the UI use
// the loaded config with the request's overrides applied.
func (a *app) serveWeb(ctx context.Context, port int) error {
	b := web.NewStatusBroadcaster()
	teeDebug(web.BroadcastWriter(b))
	latest := &web.LatestFrame{}

	runCapture := func(ctx context.Context, req web.CaptureRequest) error {
		cfg := applyOverridesToCopy(a.cfg, req)
		if err := cfg.Validate(); err != nil {
			return err
		}
		debug.Section("Web capture")
		debug.Value("Count", cfg.Grab.Count)
		debug.Value("Strategy", cfg.Grab.Strategy)
		debug.Value("Trigger", cfg.Trigger.Mode)
		_, err := a.grab(ctx, cfg, b, latest)
		return err
	}

	form := web.FormConfig{
		Count:      a.cfg.Grab.Count,
		Strategy:   a.cfg.Grab.Strategy,
		ExposureUs: a.cfg.Camera.ExposureUs,
		Trigger:    a.cfg.Trigger.Mode,
	}
	if form.Count == 0 {
		form.Count = 10
	}

	srv, err := web.NewServer(fmt.Sprintf(":%d", port), b, latest, listDevices, runCapture, form)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func listDevices() ([]web.Device, error) {
	infos, err := pylon.EnumerateDevices()
	if err != nil {
		return nil, err
	}
	out := make([]web.Device, 0, len(infos))
	for _, info := range infos {
		out = append(out, web.Device{
			FullName:     info.FullName(),
			ModelName:    info.ModelName(),
			SerialNumber: info.SerialNumber(),
			VendorName:   info.VendorName(),
		})
	}
	return out, nil
}
