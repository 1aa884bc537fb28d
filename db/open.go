package db

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go"
	"github.com/techagentng/civicpulse/config"
)

// OpenStore builds the Store selected by c.StoreDriver. app is only needed
// for the firestore driver and may be nil otherwise.
func OpenStore(ctx context.Context, c *config.Config, app *firebase.App) (Store, error) {
	log.Printf("Opening %s document store", c.StoreDriver)
	switch c.StoreDriver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLiteStore(ctx, c.SQLitePath)
	case "postgres":
		gormDB, err := GetDB(c)
		if err != nil {
			return nil, err
		}
		return NewGormStore(gormDB), nil
	case "firestore":
		if app == nil {
			return nil, fmt.Errorf("firestore store requires firebase configuration")
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("error getting Firestore client: %v", err)
		}
		return NewFirestoreStore(client), nil
	case "mongo":
		return ConnectMongoStore(ctx, c.MongoURI, c.MongoDB)
	case "redis":
		s := NewRedisStore(RedisOptions{Address: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("error connecting to redis: %v", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", c.StoreDriver)
}
