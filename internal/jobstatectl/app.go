package jobstatectl

import (
	"context"
	"io"
	"os"

	"github.com/G-Research/jobstate/pkg/client"
)

// App is the jobstatectl application. Every command writes its output to Out.
type App struct {
	Params *Params
	Out    io.Writer
}

// Params are the settings shared by all commands.
type Params struct {
	ApiConnectionDetails *client.ApiConnectionDetails
	// Reads the site mask mirror directly when set
	RedisAddrs []string
	RedisKey   string
}

func New() *App {
	return &App{
		Params: &Params{},
		Out:    os.Stdout,
	}
}

func (a *App) withClient(action func(ctx context.Context, c *client.Client) error) error {
	return client.WithConnection(a.Params.ApiConnectionDetails, func(c *client.Client) error {
		ctx, cancel := context.WithTimeout(context.Background(), client.ContextTimeout())
		defer cancel()
		return action(ctx, c)
	})
}
