// Command admin manages groups and removes users or posts, applying the same
// lifecycle rules as the site: deleting a user removes their posts, comments
// and follow edges; deleting a group detaches its posts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"yatube/internal/app"
	"yatube/internal/cache"
	"yatube/internal/db"
	"yatube/internal/media"
	"yatube/internal/models"
	"yatube/internal/store"
	"yatube/internal/store/postgres"
)

const usage = `usage: admin <command> [flags]

commands:
  create-group -title T -slug S [-description D]
  list-groups
  delete-group -slug S
  delete-user -username U
  delete-post -id N
  clear-cache

admin works on the PostgreSQL database named by DATABASE_URL. A server
started without DATABASE_URL keeps its data in memory, out of reach of this
tool; give such a server its groups with SEED_GROUPS="slug:Title;slug:Title".
`

type admin struct {
	st    store.Store
	cache cache.Cache
	media media.Store
	out   io.Writer
	log   logrus.FieldLogger
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute returns the process exit code so deferred cleanup runs first.
func execute(args []string) int {
	cfg := app.LoadConfig()
	log := app.NewLogger(cfg)
	ctx := context.Background()

	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprint(os.Stderr, usage)
		log.Error("DATABASE_URL is required")
		return 2
	}

	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Error("open database")
		return 1
	}
	if err := db.Migrate(d); err != nil {
		_ = d.Close()
		log.WithError(err).Error("migrate")
		return 1
	}
	st := postgres.New(d)
	defer st.Close()

	a := &admin{st: st, out: os.Stdout, log: log}
	if cfg.RedisAddr != "" {
		a.cache = cache.NewRedis(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), "yatube:")
	}
	if cfg.S3Bucket != "" {
		if a.media, err = media.NewS3(cfg.S3Bucket, cfg.S3Region, cfg.S3PublicURL); err != nil {
			log.WithError(err).Error("s3")
			return 1
		}
	} else {
		a.media = media.NewDisk(cfg.MediaDir, cfg.MediaURL)
	}

	if err := a.run(ctx, args); err != nil {
		log.WithError(err).Error(args[0])
		return 1
	}
	return 0
}

func (a *admin) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(a.out)

	switch cmd {
	case "create-group":
		title := fs.String("title", "", "group title")
		slug := fs.String("slug", "", "url slug")
		desc := fs.String("description", "", "description")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *title == "" || *slug == "" {
			return errors.New("-title and -slug are required")
		}
		g, err := a.st.CreateGroup(ctx, models.Group{Title: *title, Slug: *slug, Description: *desc})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "created group %d /group/%s/\n", g.ID, g.Slug)

	case "list-groups":
		groups, err := a.st.ListGroups(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSLUG\tTITLE")
		for _, g := range groups {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", g.ID, g.Slug, g.Title)
		}
		return tw.Flush()

	case "delete-group":
		slug := fs.String("slug", "", "url slug")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		g, err := a.st.GetGroupBySlug(ctx, *slug)
		if err != nil {
			return err
		}
		if err := a.st.DeleteGroup(ctx, g.ID); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "deleted group %s, its posts are now ungrouped\n", g.Slug)

	case "delete-user":
		username := fs.String("username", "", "username")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		u, err := a.st.GetUserByUsername(ctx, *username)
		if err != nil {
			return err
		}
		posts, err := a.st.ListPosts(ctx, store.PostQuery{AuthorID: u.ID})
		if err != nil {
			return err
		}
		if err := a.st.DeleteUser(ctx, u.ID); err != nil {
			return err
		}
		for _, p := range posts {
			a.dropImage(ctx, p.Image)
		}
		fmt.Fprintf(a.out, "deleted user %s and %d posts\n", u.Username, len(posts))

	case "delete-post":
		id := fs.Int64("id", 0, "post id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		p, err := a.st.GetPost(ctx, *id)
		if err != nil {
			return err
		}
		if err := a.st.DeletePost(ctx, p.ID); err != nil {
			return err
		}
		a.dropImage(ctx, p.Image)
		fmt.Fprintf(a.out, "deleted post %d\n", p.ID)

	case "clear-cache":
		if a.cache == nil {
			fmt.Fprintln(a.out, "no shared page cache configured (REDIS_ADDR unset)")
			return nil
		}
		if err := a.cache.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "page cache cleared")

	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func (a *admin) dropImage(ctx context.Context, key string) {
	if key == "" || a.media == nil {
		return
	}
	if err := a.media.Delete(ctx, key); err != nil {
		a.log.WithError(err).WithField("key", key).Warn("delete image")
	}
}
