package api

import (
	"net/url"

	"github.com/openscholar/exchange/app/database"
	"github.com/openscholar/exchange/app/doi"
	"github.com/openscholar/exchange/app/oai"
	"github.com/openscholar/exchange/app/tasks"
)

type ResponderInterface interface {
	Respond(query url.Values) (string, int)
}

var _ ResponderInterface = (*oai.Responder)(nil)

type Handler struct {
	articleRepo database.ArticleRepository
	journalRepo database.JournalRepository
	responder   ResponderInterface
	registrar   *doi.Registrar
	scheduler   tasks.TaskSchedulerInterface
}
