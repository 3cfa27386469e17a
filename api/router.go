//Package api serves an authenticated admin REST interface over the reaction-role engine
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/callummance/koala/guildmodels"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const apiAddrEnvVar string = "KOALA_API_ADDR"
const apiSecretEnvVar string = "KOALA_API_JWT_SECRET"

//Engine is the subset of reaction-role commands exposed over the API
type Engine interface {
	ListManagedMessages(ctx context.Context, guildID string) ([]guildmodels.ManagedMessage, error)
	ManagedMessage(ctx context.Context, groupID string) (*guildmodels.ManagedMessage, error)
	Bindings(ctx context.Context, groupID string) ([]guildmodels.EmojiRoleBinding, error)
	ListRequiredRoles(ctx context.Context, guildID string) ([]string, error)
	SetRequiredRoles(ctx context.Context, guildID string, roleIDs []string) error
}

//New builds the API router
func New(engine Engine, secret []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	Attach(r, engine, secret)
	return r
}

//Attach registers the API routes on r
func Attach(r *gin.Engine, engine Engine, secret []byte) {
	h := handlers{engine: engine}

	v1 := r.Group("/v1")
	{
		guild := v1.Group("/guilds/:guild", JWT(secret), guildScope())
		guild.GET("/messages", h.listMessages)
		guild.GET("/messages/:group/bindings", h.listBindings)
		guild.GET("/required-roles", h.listRequiredRoles)
		guild.PUT("/required-roles", h.setRequiredRoles)
	}
}

//Start serves the API on the address given in the environment. It returns nil without error when no
//address is configured.
func Start(engine Engine) (*http.Server, error) {
	addr, exists := os.LookupEnv(apiAddrEnvVar)
	if !exists || addr == "" {
		logrus.Infof("`%v` was not set; admin API is disabled", apiAddrEnvVar)
		return nil, nil
	}
	secret, exists := os.LookupEnv(apiSecretEnvVar)
	if !exists || secret == "" {
		return nil, fmt.Errorf("`%v` must be set to serve the admin API", apiSecretEnvVar)
	}
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              addr,
		Handler:           New(engine, []byte(secret)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("Admin API stopped: %v", err)
		}
	}()
	logrus.Infof("Admin API listening on %v", addr)
	return srv, nil
}
