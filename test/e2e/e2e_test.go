//go:build e2e

// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lender-match-workers/internal/catalog"
	"lender-match-workers/internal/common/config"
	"lender-match-workers/internal/common/database"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/models"
	"lender-match-workers/internal/recommendation"

	recommendlenderproducts "lender-match-workers/internal/workers/recommendation/recommend-lender-products"
	synclenderproducts "lender-match-workers/internal/workers/recommendation/sync-lender-products"
)

const (
	e2eIndex    = "lender_products_e2e"
	e2eCacheKey = "lender:products:e2e"
)

var (
	zeebeClient zbc.Client
	zapLog      *zap.Logger
)

func TestMain(m *testing.M) {
	var err error

	zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         "localhost:26500",
		UsePlaintextConnection: true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect to Zeebe: %v", err))
	}

	zapLog, _ = zap.NewProduction()

	code := m.Run()

	zeebeClient.Close()
	os.Exit(code)
}

// e2eProducts is seeded into Postgres and is the only catalog the run sees.
func e2eProducts() []models.LenderProduct {
	now := time.Now().UTC()
	return []models.LenderProduct{
		{ID: "e2e-ca-factoring", Name: "Receivables Advance", LenderName: "Maple Capital", Category: "invoice_factoring",
			Country: "CA", MinAmount: 10000, MaxAmount: models.Float64(500000), MinRevenue: 5000, Active: true, UpdatedAt: now},
		{ID: "e2e-us-term", Name: "Growth Term Loan", LenderName: "Liberty Bank", Category: "term_loan",
			Country: "US", MinAmount: 25000, MaxAmount: models.Float64(250000), MinRevenue: 20000, Active: true, UpdatedAt: now},
		{ID: "e2e-both-equipment", Name: "Equipment Lease", LenderName: "Northline", Category: "equipment_financing",
			Country: "Both", MinAmount: 5000, Active: true, UpdatedAt: now},
	}
}

func TestFullE2E(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	log := logger.NewZapAdapter(zapLog)

	clients := assertAllServicesConnectivity(t, cfg)
	defer clients.pg.Close()
	defer clients.redis.Close()

	repo := catalog.NewPostgresRepository(clients.pg.GetDB())
	index := catalog.NewElasticsearchIndex(clients.es, e2eIndex)

	seedCatalog(ctx, t, repo)
	defer cleanup(t, clients)

	catalogSvc := catalog.NewService(
		catalog.NewRedisStore(clients.redis.GetClient(), e2eCacheKey, time.Hour),
		[]catalog.Source{repo},
		catalog.Options{TTL: time.Minute, MaxRetries: 2},
		log,
	)

	// 1. sync copies the Postgres catalog into Elasticsearch and the cache
	syncHandler := synclenderproducts.NewHandler(&synclenderproducts.Config{}, catalogSvc, repo, index, log)
	syncOut, err := syncHandler.Execute(ctx, &synclenderproducts.Input{Reason: "e2e"})
	require.NoError(t, err)
	assert.Equal(t, catalog.SourcePostgres, syncOut.Source)
	assert.GreaterOrEqual(t, syncOut.ProductCount, 3)
	require.Len(t, syncOut.Persisted, 1)
	assert.Equal(t, synclenderproducts.TargetElasticsearch, syncOut.Persisted[0].Target)
	assert.Empty(t, syncOut.Persisted[0].Error)

	indexed, err := index.Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, indexed, syncOut.ProductCount)

	// 2. recommendations are served from the Redis snapshot
	recommender := recommendation.NewService(catalogSvc, recommendation.Options{}, nil, log)
	recHandler := recommendlenderproducts.NewHandler(&recommendlenderproducts.Config{MaxResults: 5}, recommender, log)

	input, err := recommendlenderproducts.ParseInput(`{
		"applicationId": "e2e-app-1",
		"formData": {"headquarters": "canada", "fundingAmount": 50000, "lookingFor": "capital",
			"accountsReceivableBalance": 20000, "fundsPurpose": "working_capital"},
		"monthlyRevenue": 15000
	}`)
	require.NoError(t, err)

	out, err := recHandler.Execute(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "e2e-app-1", out.ApplicationID)
	assert.False(t, out.NoEligibleProducts)
	require.NotEmpty(t, out.Products)
	assert.Equal(t, "e2e-ca-factoring", out.Products[0].ID)
	assert.Equal(t, 100, out.Products[0].MatchScore)
	for _, p := range out.Products {
		assert.NotEqual(t, "e2e-us-term", p.ID, "US-only product offered to a Canadian applicant")
	}

	// 3. the cached snapshot survives the source going away
	stale := catalog.NewService(
		catalog.NewRedisStore(clients.redis.GetClient(), e2eCacheKey, time.Hour),
		nil,
		catalog.Options{TTL: time.Minute},
		log,
	)
	snap, err := stale.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, catalog.SourcePostgres, snap.Source)

	// --- Zeebe ---
	_, err = zeebeClient.NewTopologyCommand().Send(ctx)
	assert.NoError(t, err, "Zeebe topology request failed")
}

type e2eClients struct {
	pg    *database.PostgresClient
	redis *database.RedisClient
	es    *elasticsearch.Client
}

func assertAllServicesConnectivity(t *testing.T, cfg *config.Config) e2eClients {
	t.Log("Checking service connectivity...")

	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Redis.Address = "localhost:6379"
	cfg.Database.Elasticsearch.URL = "http://localhost:9200"
	cfg.Database.Elasticsearch.Addresses = nil

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "PostgreSQL connection failed")
	require.NoError(t, pg.Ping(context.Background()), "PostgreSQL ping failed")

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err, "Redis client creation failed")
	require.NoError(t, rdb.Ping(context.Background()), "Redis ping failed")

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	require.NoError(t, err, "Elasticsearch client creation failed")
	require.NoError(t, es.Ping(context.Background()), "Elasticsearch ping failed")

	return e2eClients{pg: pg, redis: rdb, es: es.Client}
}

func seedCatalog(ctx context.Context, t *testing.T, repo *catalog.PostgresRepository) {
	require.NoError(t, repo.EnsureSchema(ctx))
	n, err := repo.Upsert(ctx, e2eProducts())
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func cleanup(t *testing.T, c e2eClients) {
	ctx := context.Background()

	for _, p := range e2eProducts() {
		if _, err := c.pg.Exec(ctx, `DELETE FROM lender_products WHERE id = $1`, p.ID); err != nil {
			t.Logf("cleanup %s: %v", p.ID, err)
		}
	}
	if err := c.redis.Del(ctx, e2eCacheKey); err != nil {
		t.Logf("cleanup redis: %v", err)
	}
	res, err := c.es.Indices.Delete([]string{e2eIndex}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		t.Logf("cleanup index: %v", err)
		return
	}
	res.Body.Close()
}
