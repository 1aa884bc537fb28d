package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Debug                        bool          `envconfig:"debug"`
	Port                         int           `envconfig:"port" default:"8080"`
	Env                          string        `envconfig:"env" default:"dev"`
	StoreDriver                  string        `envconfig:"store_driver" default:"memory"`
	PostgresHost                 string        `envconfig:"postgres_host"`
	PostgresUser                 string        `envconfig:"postgres_user"`
	PostgresDB                   string        `envconfig:"postgres_db"`
	PostgresPort                 int           `envconfig:"postgres_port" default:"5432"`
	PostgresPassword             string        `envconfig:"postgres_password"`
	SQLitePath                   string        `envconfig:"sqlite_path" default:"./data/civicpulse.db"`
	MongoURI                     string        `envconfig:"mongo_uri" default:"mongodb://localhost:27017"`
	MongoDB                      string        `envconfig:"mongo_db" default:"civicpulse"`
	RedisAddr                    string        `envconfig:"redis_addr" default:"localhost:6379"`
	RedisPassword                string        `envconfig:"redis_password"`
	RedisDB                      int           `envconfig:"redis_db"`
	FirebaseProjectID            string        `envconfig:"firebase_project_id"`
	GoogleApplicationCredentials string        `envconfig:"google_application_credentials"`
	VisionApiKey                 string        `envconfig:"vision_api_key"`
	GoogleMapsApiKey             string        `envconfig:"google_maps_api_key"`
	PerceptionTimeout            time.Duration `envconfig:"perception_timeout" default:"10s"`
	NarrativeTimeout             time.Duration `envconfig:"narrative_timeout" default:"5s"`
	MailgunApiKey                string        `envconfig:"mg_public_api_key"`
	MgDomain                     string        `envconfig:"mg_domain"`
	MgEmailFrom                  string        `envconfig:"email_from"`
	EscalationEmailTo            string        `envconfig:"escalation_email_to"`
	EscalationTopic              string        `envconfig:"escalation_topic" default:"civic-escalations"`
	NotifyMaxRetries             uint64        `envconfig:"notify_max_retries" default:"5"`
	RateLimitPerMinute           uint          `envconfig:"rate_limit_per_minute" default:"60"`
}

func Load() (*Config, error) {
	env := os.Getenv("GIN_MODE")
	if env != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.Printf("couldn't load env vars: %v", err)
		}
	}

	c := &Config{}
	err := envconfig.Process("civicpulse", c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FirebaseEnabled reports whether Firebase services (Firestore, FCM) can be initialised.
func (c *Config) FirebaseEnabled() bool {
	return c.FirebaseProjectID != "" || c.GoogleApplicationCredentials != ""
}
