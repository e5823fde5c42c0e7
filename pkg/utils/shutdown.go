package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupGracefulShutdownWithContext возвращает контекст, который отменяется
// по SIGINT или SIGTERM, и функцию завершения для defer.
//
// Функция завершения снимает обработчик сигналов, выполняет cleanups
// в обратном порядке и закрывает лог.
//
//	ctx, shutdown := utils.SetupGracefulShutdownWithContext(components.Close)
//	defer shutdown()
func SetupGracefulShutdownWithContext(cleanups ...func()) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-signals:
			Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(signals)
		cancel()
		for i := len(cleanups) - 1; i >= 0; i-- {
			if cleanups[i] != nil {
				cleanups[i]()
			}
		}
		Close()
	}
}
