package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2kPi/OpenFamily/config"
	"github.com/2kPi/OpenFamily/internal/api"
	"github.com/2kPi/OpenFamily/internal/notify"
	"github.com/2kPi/OpenFamily/internal/scheduler"
	"github.com/2kPi/OpenFamily/internal/service"
	"github.com/2kPi/OpenFamily/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	taskSvc := service.NewTaskService(store)
	appointmentSvc := service.NewAppointmentService(store)
	notificationSvc := service.NewNotificationService(store, cfg.Timezone)
	agendaSvc := service.NewAgendaService(taskSvc, appointmentSvc)

	var channels notify.Multi
	if cfg.PushEnabled() {
		channels = append(channels, notify.NewWebPush(store, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject))
	}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Fatalf("Failed to init telegram channel: %v", err)
		}
		channels = append(channels, tg)
	}
	if len(channels) == 0 {
		log.Println("Warning: no notification channel configured, reminders will stay pending")
	}

	sched := scheduler.New(store, channels, cfg.Timezone)
	sched.SetAgenda(agendaSvc, cfg.AgendaTime)

	handler := api.NewHandler(store, taskSvc, appointmentSvc, notificationSvc, cfg.Timezone)
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: handler.Router(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	go func() {
		log.Printf("HTTP server listening on :%s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Println("OpenFamily server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}

	log.Println("OpenFamily server stopped")
}
