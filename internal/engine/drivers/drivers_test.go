package drivers

import (
	"errors"
	"reflect"
	"testing"

	"github.com/hyperjump/sokuin/internal/config"
	"github.com/hyperjump/sokuin/internal/engine"
)

func TestDefault_Drivers(t *testing.T) {
	got := Default().Drivers()
	want := []string{"bleve", "memory", "null", "redis"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Drivers() = %v, want %v", got, want)
	}
}

func TestDefault_OpenMemoryAndBleve(t *testing.T) {
	r := Default()
	for _, cfg := range []config.EngineConfig{
		{Driver: "memory"},
		{Driver: "bleve", BlevePath: t.TempDir()},
	} {
		e, err := r.Open(cfg, nil)
		if err != nil {
			t.Fatalf("Open(%s): %v", cfg.Driver, err)
		}
		if e.Driver() != cfg.Driver {
			t.Errorf("Driver() = %q, want %q", e.Driver(), cfg.Driver)
		}
		_ = e.Close()
	}
}

func TestDefault_RedisWithoutAddrs(t *testing.T) {
	_, err := Default().Open(config.EngineConfig{Driver: "redis"}, nil)
	if !errors.Is(err, engine.ErrEngineUnavailable) {
		t.Errorf("err = %v, want ErrEngineUnavailable", err)
	}
}
