package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/arena/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.RemoteDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.ChangeQueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.MaxLeaderboardLimit, convey.ShouldEqual, 100)
			convey.So(cfg.BreakerMaxFailures, convey.ShouldEqual, 5)
			convey.So(cfg.BreakerOpenTimeout(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.LocalStatePath, convey.ShouldBeEmpty)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(config.Validate(cfg), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with invalid fields", t, func() {
		convey.Convey("When postgres is selected without a database url", func() {
			cfg := config.New()
			cfg.RemoteDriver = config.DriverPostgres
			err := config.Validate(cfg)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "database_url must not be empty")
		})

		convey.Convey("When the driver is unknown", func() {
			cfg := config.New()
			cfg.RemoteDriver = "mongo"
			err := config.Validate(cfg)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "remote_driver must be one of")
		})

		convey.Convey("When sizes are not positive", func() {
			cfg := config.New()
			cfg.ChangeQueueSize = 0
			cfg.HTTPBurst = -1
			err := config.Validate(cfg)

			convey.So(err.Error(), convey.ShouldContainSubstring, "change_queue_size must be gt 0")
			convey.So(err.Error(), convey.ShouldContainSubstring, "http_burst must be gt 0")
		})
	})
}
