// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
)

// Context provides the GPU, logger and configuration
// that every component of the engine uses.
// It replaces global state: each component receives the
// Context explicitly, so tests can inject a fake GPU.
type Context struct {
	drv    driver.Driver
	gpu    driver.GPU
	limits driver.Limits
	cfg    Config
	log    *slog.Logger
	shdrs  fs.FS
}

// NewContext creates a Context that uses gpu.
// A nil logger discards every record. A nil shaders
// file system reads cfg.ShaderDir from disk.
func NewContext(gpu driver.GPU, cfg Config, logger *slog.Logger, shaders fs.FS) *Context {
	cfg.Validate()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if shaders == nil {
		shaders = os.DirFS(cfg.ShaderDir)
	}
	return &Context{
		drv:    gpu.Driver(),
		gpu:    gpu,
		limits: gpu.Limits(),
		cfg:    cfg,
		log:    logger,
		shdrs:  shaders,
	}
}

// OpenContext opens the first registered driver whose
// name contains name, ignoring case, and creates a
// Context for its GPU.
// If no such driver can be opened, every registered
// driver is tried in turn.
func OpenContext(name string, cfg Config, logger *slog.Logger) (*Context, error) {
	gpu, err := openDriver(name, logger)
	if err != nil && name != "" {
		gpu, err = openDriver("", logger)
	}
	if err != nil {
		return nil, err
	}
	return NewContext(gpu, cfg, logger, nil), nil
}

// logSetter is implemented by drivers that log
// diagnostics.
type logSetter interface {
	SetLogger(*slog.Logger)
}

func openDriver(name string, logger *slog.Logger) (driver.GPU, error) {
	setLogger := func(drv driver.Driver) {
		if ls, ok := drv.(logSetter); ok && logger != nil {
			ls.SetLogger(logger)
		}
	}
	if drv, ok := driver.Lookup(name); ok {
		setLogger(drv)
		if gpu, err := drv.Open(); err == nil {
			return gpu, nil
		}
	}
	err := ErrNoDriver
	name = strings.ToLower(name)
	for _, drv := range driver.Drivers() {
		if !strings.Contains(strings.ToLower(drv.Name()), name) {
			continue
		}
		setLogger(drv)
		var gpu driver.GPU
		if gpu, err = drv.Open(); err != nil {
			err = errors.Wrapf(err, "engine: opening driver %q", drv.Name())
			continue
		}
		return gpu, nil
	}
	return nil, err
}

// GPU returns the driver.GPU.
func (c *Context) GPU() driver.GPU { return c.gpu }

// Limits returns GPU().Limits().
// This value is retrieved only once. It must not be
// changed by the caller.
func (c *Context) Limits() *driver.Limits { return &c.limits }

// Config returns the validated configuration.
func (c *Context) Config() *Config { return &c.cfg }

// Logger returns the logger.
func (c *Context) Logger() *slog.Logger { return c.log }

// Shaders returns the file system that compiled shaders
// are read from.
func (c *Context) Shaders() fs.FS { return c.shdrs }

// Close closes the driver, if the Context has one.
// Every resource created with the Context must have been
// destroyed already.
func (c *Context) Close() {
	if c.drv != nil {
		c.drv.Close()
	}
	c.gpu = nil
}

