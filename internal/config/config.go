package config

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/kopichain/order-view-svc/pkg/logger"
	"github.com/spf13/viper"
)

// MustInit loads the .env file and the yaml config, then sets up logging.
func MustInit() {
	if err := godotenv.Load("./.env"); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/order-view-svc")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		panic("error while reading config file: " + err.Error())
	}
	SetupLogger()
}

func SetupLogger() {
	handler := logger.NewHandler(nil)
	log := slog.New(handler)
	slog.SetDefault(log)
}
