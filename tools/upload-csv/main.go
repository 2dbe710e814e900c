package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	aws_pkg "github.com/yashrajoria/catalog-import/pkg/aws"
	"github.com/yashrajoria/catalog-import/pkg/logger"
)

// upload is one local file destined for a bucket.
type upload struct {
	path   string
	bucket string
	prefix string
}

func main() {
	_ = godotenv.Load()

	var productsPath, stocksPath string
	flag.StringVar(&productsPath, "products", "./csv/products.csv", "path to the products CSV")
	flag.StringVar(&stocksPath, "stocks", "./csv/stocks.csv", "path to the stocks CSV")
	flag.Parse()

	log := logger.Initialize(os.Getenv("ENV"))
	defer log.Sync()

	uploads := []upload{
		{path: productsPath, bucket: os.Getenv("PRODUCTS_BUCKET_NAME"), prefix: "products"},
		{path: stocksPath, bucket: os.Getenv("STOCKS_BUCKET_NAME"), prefix: "stocks"},
	}
	for _, u := range uploads {
		if u.bucket == "" {
			log.Fatal("PRODUCTS_BUCKET_NAME and STOCKS_BUCKET_NAME must be set")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		log.Fatal("aws config", zap.Error(err))
	}
	store := aws_pkg.NewS3BlobStore(aws_pkg.NewS3Client(awsCfg))

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range uploads {
		g.Go(func() error {
			data, err := os.ReadFile(u.path)
			if err != nil {
				return fmt.Errorf("read %s: %w", u.path, err)
			}
			key := objectKey(u.prefix, time.Now())
			if err := store.Put(gctx, u.bucket, key, data, "text/csv"); err != nil {
				return err
			}
			log.Info("Uploaded", zap.String("file", filepath.Base(u.path)), zap.String("bucket", u.bucket), zap.String("key", key))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal("Upload failed", zap.Error(err))
	}
	fmt.Println("Upload complete")
}

// objectKey names uploads <prefix>_<epoch millis>.csv.
func objectKey(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%d.csv", prefix, now.UnixMilli())
}
