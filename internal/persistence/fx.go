package persistence

import (
	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	cartrepo "github.com/smallbiznis/recoverly/internal/cart/repository"
	"github.com/smallbiznis/recoverly/internal/config"
	"github.com/smallbiznis/recoverly/internal/migration"
	reminderdomain "github.com/smallbiznis/recoverly/internal/reminder/domain"
	reminderrepo "github.com/smallbiznis/recoverly/internal/reminder/repository"
	storefrontdomain "github.com/smallbiznis/recoverly/internal/storefront/domain"
	storefrontrepo "github.com/smallbiznis/recoverly/internal/storefront/repository"
	"github.com/smallbiznis/recoverly/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module selects the repository backend once at startup. DATABASE_TYPE=memory keeps all state
// in process; every other type opens gorm and migrates the schema before serving.
var Module = fx.Module("persistence",
	fx.Provide(Open),
	fx.Provide(
		CartRepository,
		ReminderRepository,
		StorefrontRepository,
	),
)

// Store is the opened backend. DB is nil in memory mode.
type Store struct {
	DB *gorm.DB
}

func (s Store) Memory() bool {
	return s.DB == nil
}

func Open(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Store, error) {
	log = log.Named("persistence")
	if cfg.IsMemory() {
		log.Warn("persistence.memory", zap.String("note", "state is lost on restart"))
		return Store{}, nil
	}

	conn, err := db.Open(lc, cfg, log)
	if err != nil {
		return Store{}, err
	}
	if err := migration.Apply(conn, cfg, log); err != nil {
		return Store{}, err
	}
	log.Info("persistence.sql", zap.String("db_type", cfg.DBType))
	return Store{DB: conn}, nil
}

func CartRepository(s Store) cartdomain.Repository {
	if s.Memory() {
		return cartrepo.NewMemory()
	}
	return cartrepo.Provide(s.DB)
}

func ReminderRepository(s Store) reminderdomain.Repository {
	if s.Memory() {
		return reminderrepo.NewMemory()
	}
	return reminderrepo.Provide(s.DB)
}

func StorefrontRepository(s Store) storefrontdomain.Repository {
	if s.Memory() {
		return storefrontrepo.NewMemory()
	}
	return storefrontrepo.Provide(s.DB)
}
