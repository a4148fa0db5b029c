package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu       sync.RWMutex
	instance *zap.Logger
)

// Init inicializa el singleton. Llamadas posteriores reemplazan la instancia,
// lo que permite reconfigurar el nivel después de cargar el YAML.
func Init(cfg Config) {
	l := build(cfg)
	mu.Lock()
	instance = l
	mu.Unlock()
}

// Set reemplaza el logger global (tests usan zap.NewNop u observers).
func Set(l *zap.Logger) {
	mu.Lock()
	instance = l
	mu.Unlock()
}

// L retorna el logger global; si Init no fue llamado crea uno dev/info.
func L() *zap.Logger {
	mu.RLock()
	l := instance
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = build(Config{Env: "dev", Level: "info"})
	}
	return instance
}

func Named(name string) *zap.Logger { return L().Named(name) }

func With(fields ...zap.Field) *zap.Logger { return L().With(fields...) }

// S retorna la versión sugared, útil en los comandos CLI.
func S() *zap.SugaredLogger { return L().Sugar() }

// Sync flushea buffers pendientes. Usar con defer en main.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return nil
	}
	return instance.Sync()
}
