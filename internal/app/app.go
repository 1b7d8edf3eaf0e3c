package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/stayware/booking/internal/booking"
	"github.com/stayware/booking/internal/catalog"
	"github.com/stayware/booking/internal/config"
	"github.com/stayware/booking/internal/idgen/uuidgen"
	"github.com/stayware/booking/internal/logger"
	"github.com/stayware/booking/internal/migration"
	"github.com/stayware/booking/internal/notify"
	"github.com/stayware/booking/internal/storage/memory"
	"github.com/stayware/booking/internal/storage/postgres"
	"github.com/stayware/booking/internal/sweeper"
	"github.com/stayware/booking/internal/transport/web"
	"github.com/stayware/booking/internal/waitlist"
)

// store is the union of what the managers need from a storage backend. Both
// the in-memory store and the postgres store satisfy it.
type store interface {
	BeginUnitSection(ctx context.Context, unitID string) (context.Context, error)
	CommitSection(ctx context.Context) error
	RollbackSection(ctx context.Context) error

	SaveReservation(ctx context.Context, res *booking.Reservation) error
	GetReservation(ctx context.Context, id string) (*booking.Reservation, error)
	GetReservationByIdempotencyKey(ctx context.Context) (*booking.Reservation, error)
	ListActiveReservations(ctx context.Context, unitID string) ([]*booking.Reservation, error)
	ListReservationsByGuest(ctx context.Context, guestID string) ([]*booking.Reservation, error)
	ListDueCompletion(ctx context.Context, today time.Time) ([]*booking.Reservation, error)
	UpdateReservationStatus(ctx context.Context, id string, status booking.ReservationStatus) error

	SaveEntry(ctx context.Context, entry *waitlist.Entry) error
	GetEntry(ctx context.Context, id string) (*waitlist.Entry, error)
	FindActiveEntry(ctx context.Context, unitID, guestID string, iv booking.Interval) (*waitlist.Entry, error)
	ListActiveEntriesByUnit(ctx context.Context, unitID string) ([]*waitlist.Entry, error)
	ListActiveEntries(ctx context.Context) ([]*waitlist.Entry, error)
	ListEntriesByGuest(ctx context.Context, guestID, unitID string) ([]*waitlist.Entry, error)
	UpdateEntryStatus(ctx context.Context, id string, status waitlist.EntryStatus, notifiedAt *time.Time) error

	SaveUnit(ctx context.Context, unit *catalog.Unit) error
	GetUnit(ctx context.Context, id string) (*catalog.Unit, error)
	SearchUnits(ctx context.Context, filter catalog.Filter) ([]*catalog.Unit, error)
}

func openStore(ctx context.Context, l *logger.Logger, conf config.Storage) (store, func(), error) {
	switch conf.Driver {
	case "", "memory":
		db := memory.New(memory.Config{L: l})

		if err := migration.Up(ctx, l, db); err != nil {
			return nil, nil, fmt.Errorf("seed memory store: %w", err)
		}

		l.LogInfo("Seed migration has been applied")

		return db, func() {}, nil
	case "postgres":
		db, err := sql.Open("postgres", conf.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}

		if err := db.PingContext(ctx); err != nil {
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}

		closeDB := func() {
			if err := db.Close(); err != nil {
				l.LogErrorf("Failed to close postgres: %v", err.Error())
			}
		}

		return postgres.New(db, l), closeDB, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", conf.Driver) //nolint:goerr113
	}
}

func Run(l *logger.Logger, confPath string) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)
	defer cancel()

	conf, err := config.Load(confPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	storage, closeStorage, err := openStore(ctx, l, conf.Storage)
	if err != nil {
		return err
	}
	defer closeStorage()

	var sender notify.Sender = notify.NewLogSender(l)

	if conf.SMTP.Enabled() {
		sender = notify.NewMailSender(notify.MailConfig{
			Host:      conf.SMTP.Host,
			Port:      conf.SMTP.Port,
			User:      conf.SMTP.User,
			Password:  conf.SMTP.Password,
			FromName:  conf.SMTP.FromName,
			FromEmail: conf.SMTP.FromEmail,
		})
	}

	//nolint:exhaustruct
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		L:      l,
		Sender: sender,
	})
	dispatcher.Start(ctx)

	// Stop the worker and let it drain before Run returns.
	defer func() {
		cancel()
		dispatcher.Wait()
	}()

	idGen := uuidgen.New()

	waitingList := waitlist.New(waitlist.Config{
		L:              l,
		Storage:        storage,
		IDGenerator:    idGen,
		Notifier:       dispatcher,
		ResponseWindow: conf.Sweep.ResponseWindow.Std(),
	})

	bookManager := booking.New(l, storage, idGen, dispatcher)
	bookManager.SetReleaseListener(waitingList)

	units := catalog.NewService(storage)

	go sweeper.New(l, waitingList, bookManager, conf.Sweep.Interval.Std()).Run(ctx)

	webConf := web.Conf{
		L:                 l,
		ServerLogger:      log.Default(),
		Host:              conf.Server.Host,
		Port:              conf.Server.Port,
		ReadHeaderTimeout: conf.Server.ReadHeaderTimeout.Std(),
		LivenessEndpoint:  "/liveness",
	}

	srv, err := web.New(ctx, webConf, bookManager, waitingList, units)
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	//nolint:contextcheck
	go func() {
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*4) //nolint:gomnd
		defer cancel()

		if err := srv.Srv().Shutdown(ctx); err != nil {
			l.LogErrorf("Failed to stop http server: %v", err.Error())
		}
	}()

	l.LogInfo("Application is running on %v:%v...", webConf.Host, webConf.Port)

	if err := srv.Srv().ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		l.LogErrorf("Failed to run http server: %v", err.Error())

		cancel()
	}

	l.LogInfo("Application stopped gracefully")

	return nil
}
