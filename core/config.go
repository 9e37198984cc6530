package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (default), TEST, QA, PROD
		Build    string
		AppName  string

		SecretKey        []byte // access token signing key
		RefreshSecretKey []byte // refresh token signing key

		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridAPIKey   string
		RollbarToken     string

		Server   ServerConfig
		Database DatabaseConfig
		Mpesa    MpesaConfig
		Paypal   PaypalConfig

		SuperAdmin SeedAccountConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration // access token lifetime
		JWTRefreshExpirationDelta time.Duration // refresh token lifetime
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	MpesaConfig struct {
		BaseURL        string
		ConsumerKey    string
		ConsumerSecret string
		Shortcode      string
		Passkey        string
		CallbackURL    string
	}

	PaypalConfig struct {
		BaseURL      string
		ClientID     string
		ClientSecret string
	}

	SeedAccountConfig struct {
		Email    string
		Password string
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the app configuration from the environment;
// an optional config/.env.<env> file is loaded first if it exists.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Hesabu")
	v.SetDefault("secretKey", "w3+)m^ab&8p!o$e7=vz&u0xh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("refreshSecretKey", "n0y$8f(dr+1q&5s!j$e7=dz&u0xh2(h!x)#*c2(#yg4h^$cegz")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverPort", "8000")
	v.SetDefault("serverDebugHost", "localhost:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 15*time.Minute)
	v.SetDefault("jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseName", "hesabu")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", "5432")
	v.SetDefault("databaseDisableTLS", true)

	v.SetDefault("mpesaBaseURL", "https://sandbox.safaricom.co.ke")
	v.SetDefault("mpesaShortcode", "174379")
	v.SetDefault("paypalBaseURL", "https://api-m.sandbox.paypal.com")

	v.SetDefault("superAdminEmail", "superadmin@localhost")
	v.SetDefault("superAdminPassword", "ChangeMe#Now1")

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetDefault("testMode", env == "TEST")
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        []byte(v.GetString("secretKey")),
		RefreshSecretKey: []byte(v.GetString("refreshSecretKey")),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		SendgridAPIKey:   v.GetString("sendgridAPIKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Port:                      v.GetString("serverPort"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Name:          v.GetString("databaseName"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetString("databasePort"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
		},
		Mpesa: MpesaConfig{
			BaseURL:        v.GetString("mpesaBaseURL"),
			ConsumerKey:    v.GetString("mpesaConsumerKey"),
			ConsumerSecret: v.GetString("mpesaConsumerSecret"),
			Shortcode:      v.GetString("mpesaShortcode"),
			Passkey:        v.GetString("mpesaPasskey"),
			CallbackURL:    v.GetString("mpesaCallbackURL"),
		},
		Paypal: PaypalConfig{
			BaseURL:      v.GetString("paypalBaseURL"),
			ClientID:     v.GetString("paypalClientID"),
			ClientSecret: v.GetString("paypalClientSecret"),
		},
		SuperAdmin: SeedAccountConfig{
			Email:    v.GetString("superAdminEmail"),
			Password: v.GetString("superAdminPassword"),
		},
	}
}
