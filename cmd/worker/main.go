package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classattend/internal/config"
	"classattend/internal/mailer"
	"classattend/internal/queue"
	"classattend/internal/store"
)

// Worker consumes attendance-marked events and emails the student a
// confirmation. Delivery here is best effort: the record itself is already
// durable, so a failed send is logged and dropped.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classattend:marked")
	}

	smtp := mailer.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for events...")
	for evt := range events {
		subject := "Attendance recorded"
		body := fmt.Sprintf("Hi %s,\n\nYour attendance for %s was recorded as %s.\n", evt.Name, evt.Day, evt.Status)
		if err := smtp.Send(evt.Email, subject, body); err != nil {
			log.Printf("confirmation email to %s failed: %v", evt.Email, err)
			continue
		}
		log.Printf("confirmation sent to %s for %s", evt.Email, evt.Day)
	}

	log.Println("worker stopped")
}
