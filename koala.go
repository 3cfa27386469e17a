package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/callummance/koala/api"
	"github.com/callummance/koala/bot"
	"github.com/callummance/koala/cache"
	"github.com/callummance/koala/db"
	"github.com/callummance/koala/db/rethink"
	"github.com/callummance/koala/rfr"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const logLevelEnvVar string = "KOALA_LOG_LEVEL"

//backend is a persistent store that also keeps guild settings
type backend interface {
	rfr.Store
	bot.GuildStore
	Close()
}

func main() {
	err := godotenv.Load()
	if err != nil {
		logrus.Warnf("Failed to load .env file due to error %v", err)
	}
	configureLogging()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := openBackend()
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	var engineStore rfr.Store = store
	redis, err := cache.Connect(ctx)
	cancel()
	if err != nil {
		logrus.Fatalf("Failed to connect to cache: %v", err)
	}
	if redis != nil {
		engineStore = cache.New(store, redis, cache.DefaultTTL)
	}

	koala, err := bot.Init(engineStore, store)
	if err != nil {
		logrus.Fatalf("Failed to start discord bot: %v", err)
	}
	logrus.Infof("Bot is now running. Press ^+C to exit.")
	addURL, err := koala.BotAddURL()
	if err != nil {
		logrus.Errorf("Failed to generate bot add URL due to error %v", err)
	} else {
		logrus.Infof("Go to `%v` to add bot to your server", addURL)
	}

	apiServer, err := api.Start(koala.Engine)
	if err != nil {
		logrus.Fatalf("Failed to start admin API: %v", err)
	}

	closeChan := make(chan os.Signal, 1)
	signal.Notify(closeChan, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-closeChan

	if apiServer != nil {
		shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
		_ = apiServer.Shutdown(shutCtx)
		cancelShut()
	}
	koala.Close()
	if redis != nil {
		redis.Close()
	}
	store.Close()
	fmt.Println("Goodbye!")
}

func configureLogging() {
	levelStr, exists := os.LookupEnv(logLevelEnvVar)
	if !exists {
		return
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		logrus.Warnf("Ignoring invalid `%v` value %q: %v", logLevelEnvVar, levelStr, err)
		return
	}
	logrus.SetLevel(level)
}

func openBackend() (backend, error) {
	if db.ConfiguredDriver() == db.DriverRethink {
		conn, err := rethink.Init()
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	conn, err := db.Init()
	if err != nil {
		return nil, err
	}
	return conn, nil
}
