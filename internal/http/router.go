package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/poldracklab/cogat/internal/http/handlers"
	httpMW "github.com/poldracklab/cogat/internal/http/middleware"
	"github.com/poldracklab/cogat/internal/observability"
	"github.com/poldracklab/cogat/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	ActorMiddleware *httpMW.ActorMiddleware

	HealthHandler   *httpH.HealthHandler
	APIHandler      *httpH.APIHandler
	NodeHandler     *httpH.NodeHandler
	LinkHandler     *httpH.LinkHandler
	ViewHandler     *httpH.ViewHandler
	CurationHandler *httpH.CurationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.RequestMeta())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	if cfg.ActorMiddleware != nil {
		r.Use(cfg.ActorMiddleware.AttachActor())
	}
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")

	// Public API, served under both the bare and versioned prefix.
	if cfg.APIHandler != nil {
		for _, g := range []*gin.RouterGroup{api, api.Group("/v-alpha")} {
			g.GET("/search", cfg.APIHandler.Search)
			g.GET("/concept", cfg.APIHandler.GetConcept)
			g.GET("/task", cfg.APIHandler.GetTask)
			g.GET("/disorder", cfg.APIHandler.GetDisorder)
		}
	}

	// Reads
	if cfg.NodeHandler != nil {
		api.GET("/counts", cfg.NodeHandler.Counts)
		api.GET("/nodes/:label", cfg.NodeHandler.List)
		api.GET("/nodes/:label/:id", cfg.NodeHandler.Get)
		api.GET("/nodes/:label/:id/creator", cfg.NodeHandler.Creator)
		api.GET("/graph/:label", cfg.NodeHandler.Graph)
	}
	if cfg.LinkHandler != nil {
		api.GET("/relations/:relation/node-type", cfg.LinkHandler.RelationNodeType)
	}
	if cfg.ViewHandler != nil {
		api.GET("/search/all", cfg.ViewHandler.SearchAll)
		api.GET("/search/contrast", cfg.ViewHandler.SearchContrasts)
		api.GET("/tasks/:id/contrasts", cfg.ViewHandler.TaskContrasts)
		api.GET("/tasks/:id/conditions", cfg.ViewHandler.TaskConditions)
		api.GET("/tasks/:id/disorders", cfg.ViewHandler.TaskDisorders)
		api.GET("/tasks/:id/concepts", cfg.ViewHandler.TaskConcepts)
		api.GET("/tasks/:id/measured-by/:label", cfg.ViewHandler.TaskMeasuredBy)
		api.GET("/contrasts/:id/tasks", cfg.ViewHandler.ContrastTasks)
		api.GET("/contrasts/:id/conditions", cfg.ViewHandler.ContrastConditions)
		api.GET("/contrasts/:id/concepts", cfg.ViewHandler.ContrastConcepts)
		api.GET("/theories/:id/terms", cfg.ViewHandler.TheoryTerms)
		api.GET("/disorders/tree", cfg.ViewHandler.DisorderTree)
		api.GET("/concept-classes", cfg.ViewHandler.ConceptClasses)
	}

	// Writes
	protected := api.Group("/")
	if cfg.ActorMiddleware != nil {
		protected.Use(cfg.ActorMiddleware.RequireActor())
	}
	if cfg.APIHandler != nil {
		for _, prefix := range []string{"", "v-alpha/"} {
			protected.POST(prefix+"concept", cfg.APIHandler.PostConcept)
			protected.POST(prefix+"task", cfg.APIHandler.PostTask)
		}
	}
	if cfg.NodeHandler != nil {
		protected.POST("/nodes/:label", cfg.NodeHandler.Create)
		protected.PATCH("/nodes/:label/:id", cfg.NodeHandler.Update)
		protected.POST("/nodes/:label/:id/reviewed", cfg.NodeHandler.SetReviewed)
		protected.POST("/nodes/:label/:id/disambiguate", cfg.NodeHandler.Disambiguate)
	}
	if cfg.LinkHandler != nil {
		protected.POST("/links", cfg.LinkHandler.Link)
		protected.DELETE("/links", cfg.LinkHandler.Unlink)
		protected.PATCH("/links", cfg.LinkHandler.UpdateProperties)
		protected.POST("/links/create", cfg.LinkHandler.CreateAndLink)
	}
	if cfg.CurationHandler != nil {
		protected.POST("/tasks/:id/conditions", cfg.CurationHandler.AddCondition)
		protected.POST("/tasks/:id/contrasts", cfg.CurationHandler.AddContrast)
		protected.POST("/tasks/:id/concepts", cfg.CurationHandler.AssertTaskConcept)
		protected.POST("/tasks/:id/phenotypes", cfg.CurationHandler.AddTaskPhenotype)
		protected.POST("/tasks/:id/concept-contrasts", cfg.CurationHandler.AssertConceptContrast)
		protected.POST("/disorders/:id/disorders", cfg.CurationHandler.AddDisorderRelation)
		protected.POST("/disorders/:id/tasks", cfg.CurationHandler.AssertDisorderTask)
		protected.POST("/concepts/:id/relations", cfg.CurationHandler.AddConceptRelation)
		protected.POST("/theories/:id/assertions", cfg.CurationHandler.AddTheoryAssertion)
	}

	return r
}
