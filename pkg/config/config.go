package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port                    string        `env:"PORT"                      envDefault:"8080"`
	Env                     string        `env:"ENV"                       envDefault:"development"`
	PostgresConnStr         string        `env:"POSTGRES_CONN_STR,required,notEmpty"`
	MongoURI                string        `env:"MONGO_URI,required,notEmpty"`
	MongoDatabase           string        `env:"MONGO_DATABASE"            envDefault:"socialmedia"`
	JWTSecret               string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL                time.Duration `env:"TOKEN_TTL"                 envDefault:"1h"`
	BcryptCost              int           `env:"BCRYPT_COST"               envDefault:"12"`
	FeedPageSize            int           `env:"FEED_PAGE_SIZE"            envDefault:"2"`
	SubscriberBuffer        int           `env:"SUBSCRIBER_BUFFER"         envDefault:"16"`
	ImagesDir               string        `env:"IMAGES_DIR"                envDefault:"images"`
	ImageSweepSpec          string        `env:"IMAGE_SWEEP_SPEC"          envDefault:"@every 1m"`
	FirebaseCredentialsPath string        `env:"FIREBASE_CREDENTIALS_PATH"`
}

// Load reads an optional .env file, then parses the environment. Variables already
// set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}
