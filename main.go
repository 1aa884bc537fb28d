package main

import (
	"context"
	"log"
	"time"

	firebase "firebase.google.com/go"
	"github.com/techagentng/civicpulse/config"
	"github.com/techagentng/civicpulse/db"
	"github.com/techagentng/civicpulse/server"
	"github.com/techagentng/civicpulse/services"
	"google.golang.org/api/option"
)

func InitFirebase(ctx context.Context, conf *config.Config) *firebase.App {
	var opts []option.ClientOption
	if conf.GoogleApplicationCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(conf.GoogleApplicationCredentials))
	}
	var fbConfig *firebase.Config
	if conf.FirebaseProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: conf.FirebaseProjectID}
	}
	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		log.Fatalf("error initializing Firebase app: %v", err)
	}
	log.Println("Firebase initialized")
	return app
}

func escalationNotifier(ctx context.Context, conf *config.Config, app *firebase.App) services.EscalationNotifier {
	var notifiers services.MultiNotifier
	if app != nil {
		client, err := app.Messaging(ctx)
		if err != nil {
			log.Printf("error getting Messaging client, push notices disabled: %v", err)
		} else {
			log.Println("Firebase Messaging client initialized")
			notifiers = append(notifiers, services.NewFCMNotifier(client, conf.EscalationTopic))
		}
	}
	if conf.MailgunApiKey != "" && conf.MgDomain != "" && conf.EscalationEmailTo != "" {
		notifiers = append(notifiers, services.NewMailgunNotifier(conf.MgDomain, conf.MailgunApiKey, conf.MgEmailFrom, conf.EscalationEmailTo))
	}
	if len(notifiers) == 0 {
		return nil
	}
	return services.NewRetryingNotifier(notifiers, time.Second, conf.NotifyMaxRetries)
}

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	var firebaseApp *firebase.App
	if conf.FirebaseEnabled() {
		firebaseApp = InitFirebase(ctx, conf)
	}

	store, err := db.OpenStore(ctx, conf, firebaseApp)
	if err != nil {
		log.Fatalf("error opening document store: %v", err)
	}
	defer store.Close()

	reportRepo := db.NewCivicReportRepo(store)
	escalationRepo := db.NewEscalationRepo(store)
	pointsRepo := db.NewPointsRepo(store)

	var perception services.Perception = services.NewStaticPerception()
	if conf.VisionApiKey != "" {
		vision, err := services.NewVisionPerception(ctx, conf.VisionApiKey)
		if err != nil {
			log.Fatal(err)
		}
		perception = vision
	} else {
		log.Println("CIVICPULSE_VISION_API_KEY not set, using static perception")
	}

	narrator := services.NewUnavailableNarrator()
	if conf.GoogleMapsApiKey != "" {
		narrator = services.NewGeocodingNarrator(conf.GoogleMapsApiKey)
	}

	hub := server.NewEventHub()
	pointsService := services.NewPointsService(pointsRepo, conf)
	civicReportService := services.NewCivicReportService(
		reportRepo,
		escalationRepo,
		pointsService,
		perception,
		narrator,
		escalationNotifier(ctx, conf, firebaseApp),
		hub,
		conf,
	)

	s := &server.Server{
		Config:             conf,
		CivicReportService: civicReportService,
		PointsService:      pointsService,
		Hub:                hub,
	}
	s.Start()
}
