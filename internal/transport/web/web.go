package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/stayware/booking/internal/booking"
	"github.com/stayware/booking/internal/catalog"
	"github.com/stayware/booking/internal/logger"
	"github.com/stayware/booking/internal/waitlist"
)

type Server struct {
	srv      *http.Server
	router   *http.ServeMux
	l        *logger.Logger
	conf     Conf
	bManager *booking.Manager
	wManager *waitlist.Manager
	units    *catalog.Service
}

type Conf struct {
	L                 *logger.Logger
	ServerLogger      *log.Logger
	Host              string
	Port              string
	ReadHeaderTimeout time.Duration
	LivenessEndpoint  string
}

func New(
	ctx context.Context,
	conf Conf,
	bookingManager *booking.Manager,
	waitingList *waitlist.Manager,
	units *catalog.Service,
) (*Server, error) {
	mux := http.NewServeMux()

	//nolint:exhaustruct
	srv := &http.Server{
		Addr:              net.JoinHostPort(conf.Host, conf.Port),
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		ErrorLog:          conf.ServerLogger,
		Handler:           mux,
		BaseContext: func(listener net.Listener) context.Context {
			return ctx
		},
	}

	server := &Server{
		srv:      srv,
		router:   mux,
		l:        conf.L,
		conf:     conf,
		bManager: bookingManager,
		wManager: waitingList,
		units:    units,
	}

	server.addRoutes(mux)

	return server, nil
}

func (s *Server) Srv() *http.Server {
	return s.srv
}
