package config

import (
	"os"

	"github.com/anyproto/any-sync/app"
	"gopkg.in/yaml.v3"

	"github.com/instanthost/publish-server/api"
	"github.com/instanthost/publish-server/auth"
	"github.com/instanthost/publish-server/db"
	"github.com/instanthost/publish-server/gateway/gatewayconfig"
	"github.com/instanthost/publish-server/publish"
	"github.com/instanthost/publish-server/ratelimit"
	"github.com/instanthost/publish-server/reaper"
	"github.com/instanthost/publish-server/redisprovider"
	"github.com/instanthost/publish-server/store"
)

const CName = "config"

func NewFromFile(path string) (c *Config, err error) {
	c = &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return
}

type Config struct {
	Mongo   db.Mongo             `yaml:"mongo"`
	Redis   redisprovider.Config `yaml:"redis"`
	S3Store store.Config         `yaml:"s3Store"`
	Api     api.Config           `yaml:"api"`
	Gateway gatewayconfig.Config `yaml:"gateway"`
	Publish publish.Config       `yaml:"publish"`
	Auth    auth.Config          `yaml:"auth"`
	Limits  ratelimit.Config     `yaml:"limits"`
	Reaper  reaper.Config        `yaml:"reaper"`
}

func (c *Config) Init(a *app.App) (err error) {
	return nil
}

func (c *Config) Name() (name string) {
	return CName
}

func (c *Config) GetMongo() db.Mongo {
	return c.Mongo
}

func (c *Config) GetRedis() redisprovider.Config {
	return c.Redis
}

func (c *Config) GetS3Store() store.Config {
	return c.S3Store
}

func (c *Config) GetApi() api.Config {
	return c.Api
}

func (c *Config) GetGateway() gatewayconfig.Config {
	return c.Gateway
}

func (c *Config) GetPublish() publish.Config {
	return c.Publish
}

func (c *Config) GetAuth() auth.Config {
	return c.Auth
}

func (c *Config) GetLimits() ratelimit.Config {
	return c.Limits
}

func (c *Config) GetReaper() reaper.Config {
	return c.Reaper
}
