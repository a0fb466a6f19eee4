// Copyright (c) 2026 FridayAI
//
// Licensed under the Apache License 2.0. See LICENSE.md for details.

package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig is the full service configuration, loaded from a `.env` file
// and/or environment variables.
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogFile  string `mapstructure:"log_file"`

	// Local tool binaries. Empty values fall back to the remote gateway.
	SttBinary    string `mapstructure:"stt_binary"`
	SttModelFile string `mapstructure:"stt_model_file"`
	TtsBinary    string `mapstructure:"tts_binary"`
	FfmpegBinary string `mapstructure:"ffmpeg_binary"`

	// Remote gateway (OpenAI-compatible) used for STT/TTS/LLM fallbacks.
	GatewayURL   string `mapstructure:"gateway_url"`
	GatewayToken string `mapstructure:"gateway_token"`
	SessionKey   string `mapstructure:"session_key"`

	LlmModel  string   `mapstructure:"llm_model"`
	SttModels []string `mapstructure:"stt_models"`
	TtsModel  string   `mapstructure:"tts_model"`
	TtsVoice  string   `mapstructure:"tts_voice"`
	TtsFormat string   `mapstructure:"tts_format"`

	// Usage ledger (read-only summariser).
	UsageLedgerPath string `mapstructure:"usage_ledger_path"`
}

// InitConfig reads configuration via viper. An explicit ENV_PATH overrides
// the default `.env` in the working directory; environment variables always
// take precedence.
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: no .env found, reading from environment")
	}
	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "friday-voice-bridge")
	v.SetDefault("VERSION", "0.1.0")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8787)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_FILE", "")

	v.SetDefault("STT_BINARY", "whisper-cli")
	v.SetDefault("STT_MODEL_FILE", "")
	v.SetDefault("TTS_BINARY", "piper")
	v.SetDefault("FFMPEG_BINARY", "ffmpeg")

	v.SetDefault("GATEWAY_URL", "https://api.openai.com/v1")
	v.SetDefault("GATEWAY_TOKEN", "")
	v.SetDefault("SESSION_KEY", "")

	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("STT_MODELS", []string{"whisper-1", "gpt-4o-mini-transcribe"})
	v.SetDefault("TTS_MODEL", "gpt-4o-mini-tts")
	v.SetDefault("TTS_VOICE", "alloy")
	v.SetDefault("TTS_FORMAT", "ogg")

	v.SetDefault("USAGE_LEDGER_PATH", "friday-usage.db")
}

// GetApplicationConfig unmarshals and validates the loaded configuration.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
