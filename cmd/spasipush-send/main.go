// Command spasipush-send asks a spasi-push server to broadcast a notification.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/oliverisaac/goli"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spasibg/spasi-push/lib/pushclient"
)

func init() {
	goli.InitLogrus(logrus.InfoLevel)
}

func main() {
	err := run(os.Args[1:])
	if err != nil {
		logrus.Fatal(err)
	}
}

func run(args []string) error {
	_ = godotenv.Load(".env")

	fs := flag.NewFlagSet("spasipush-send", flag.ContinueOnError)
	endpoint := fs.String("endpoint", goli.DefaultEnv("SPASI_ENDPOINT", "http://localhost:8080"), "spasi-push server URL")
	token := fs.String("token", os.Getenv("SPASI_ADMIN_TOKEN"), "admin bearer token")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")

	var push pushclient.Push
	fs.StringVar(&push.Topic, "topic", "", "push topic, later pushes with the same topic replace earlier ones")
	fs.StringVar(&push.Title, "title", "", "notification title")
	fs.StringVar(&push.Body, "body", "", "notification body")
	fs.StringVar(&push.Icon, "icon", "", "icon name (signal, danger, witness, volunteer, success, fail) or URL")
	fs.StringVar(&push.Link, "link", "", "link opened on click")
	fs.StringVar(&push.City, "city", "", "only subscribers in this city")
	fs.StringVar(&push.Category, "category", "", "only subscribers following this category")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return fmt.Errorf("You must pass -token or define env SPASI_ADMIN_TOKEN")
	}
	if push.Title == "" && push.Body == "" {
		return fmt.Errorf("You must pass -title or -body")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := pushclient.New(*endpoint, *token)
	if err := client.SendPush(ctx, push); err != nil {
		return errors.Wrap(err, "sending push")
	}

	logrus.WithField("endpoint", *endpoint).Info("Push queued")
	return nil
}
