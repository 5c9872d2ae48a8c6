//go:build integration

package service_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/config"
	"github.com/okian/arena/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var redisURL string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "start redis container: %v\n", err)
		os.Exit(1)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis endpoint: %v\n", err)
		os.Exit(1)
	}
	redisURL = "redis://" + endpoint

	code := m.Run()
	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "terminate redis container: %v\n", err)
	}
	os.Exit(code)
}

func redisService(t *testing.T, name string) *service.Service {
	t.Helper()
	cfg := config.New()
	cfg.RemoteDriver = config.DriverRedis
	cfg.RedisURL = redisURL
	cfg.LocalStatePath = filepath.Join(t.TempDir(), name+".db")
	return service.New(cfg, service.WithBundled(bundled))
}

func TestServiceIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	Convey("Given two voters sharing a redis store", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		alice := redisService(t, "alice")
		bob := redisService(t, "bob")
		So(alice.Start(ctx), ShouldBeNil)
		defer alice.Stop()
		So(bob.Start(ctx), ShouldBeNil)
		defer bob.Stop()

		So(alice.GetStats().State, ShouldEqual, "ready")
		So(alice.Identity(), ShouldNotEqual, bob.Identity())

		Convey("When alice votes", func() {
			before, err := bob.Candidate(ctx, "c", "refactoring")
			So(err, ShouldBeNil)
			_, err = alice.Vote(ctx, model.VoteRequest{CandidateA: "a", CandidateB: "c", Category: "refactoring", WinnerID: "c"})
			So(err, ShouldBeNil)

			Convey("Then bob's catalog follows through the change feed", func() {
				So(eventually(func() bool {
					e, err := bob.Candidate(ctx, "c", "refactoring")
					return err == nil && e.Value > before.Value
				}), ShouldBeTrue)

				voted, _ := bob.HasVoted("a", "c", "refactoring")
				So(voted, ShouldBeFalse)
			})
		})

		Convey("When alice restarts on the same local state", func() {
			id := alice.Identity()
			_, err := alice.Vote(ctx, model.VoteRequest{CandidateA: "a", CandidateB: "b", Category: "explaining", WinnerID: "a"})
			So(err, ShouldBeNil)
			alice.Stop()
			So(alice.Start(ctx), ShouldBeNil)

			Convey("Then identity and voted pairs survive", func() {
				So(alice.Identity(), ShouldEqual, id)
				voted, _ := alice.HasVoted("b", "a", "explaining")
				So(voted, ShouldBeTrue)
			})
		})
	})
}
