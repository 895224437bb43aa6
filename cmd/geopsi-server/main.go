// Command geopsi-server runs the proximity and PSI HTTP service: it loads
// configuration, wires the geo/user stores and PSI session manager, and
// serves the HTTP surface (internal/httpapi) until terminated.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/auroradata-ai/geofence-psi/internal/authtoken"
	"github.com/auroradata-ai/geofence-psi/internal/config"
	"github.com/auroradata-ai/geofence-psi/internal/geostore"
	"github.com/auroradata-ai/geofence-psi/internal/hash"
	"github.com/auroradata-ai/geofence-psi/internal/httpapi"
	"github.com/auroradata-ai/geofence-psi/internal/logging"
	"github.com/auroradata-ai/geofence-psi/internal/psi"
	"github.com/auroradata-ai/geofence-psi/internal/userstore"
)

func main() {
	configPath := flag.String("config", "", "path to config YAML file")
	memory := flag.Bool("memory", false, "use in-memory stores instead of Postgres (local/dev only)")
	seed := flag.Bool("seed", false, "seed a handful of dev users when running with -memory")
	flag.Parse()

	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg.SetDefaults()
	}

	if err := logging.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		log.Fatalf("init logging: %v", err)
	}
	logger := logging.Get()

	users, geo, err := buildStores(cfg, *memory)
	if err != nil {
		logger.Error("build stores: %v", err)
		os.Exit(1)
	}

	if *memory && *seed {
		seedDevUsers(users)
	}

	tokens := authtoken.New(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	sessions := psi.NewManager(cfg.PSI.SessionTimeout)
	server := httpapi.NewServer(users, geo, tokens, sessions, cfg.Nearby.MaxUsers)

	logger.Info("listening on %s", cfg.Server.BindAddr)
	if err := http.ListenAndServe(cfg.Server.BindAddr, server.Routes()); err != nil {
		logger.Error("server stopped: %v", err)
		os.Exit(1)
	}
}

func buildStores(cfg *config.Config, memory bool) (userstore.Store, geostore.Store, error) {
	if memory {
		return userstore.NewMemStore(), geostore.NewMemStore(), nil
	}

	userDB, err := userstore.NewPostgresStore(cfg.Database.DSN, cfg.Database.UsersTable)
	if err != nil {
		return nil, nil, err
	}
	if err := userDB.SetupSchema(); err != nil {
		return nil, nil, err
	}

	geoDB, err := geostore.NewPostgresStore(cfg.Database.DSN, cfg.Database.Table)
	if err != nil {
		return nil, nil, err
	}
	if err := geoDB.SetupSchema(); err != nil {
		return nil, nil, err
	}

	return userDB, geoDB, nil
}

// seedDevUsers provisions a couple of accounts for local exploration; it
// mirrors __main__'s big_ben/wembley/greenwich fixture users from the
// reference client, minus any map rendering.
func seedDevUsers(users userstore.Store) {
	for _, name := range []string{"big_ben", "wembley", "greenwich"} {
		digest, err := hash.Hash("secret")
		if err != nil {
			continue
		}
		_ = users.Upsert(name, digest, false)
	}
}
