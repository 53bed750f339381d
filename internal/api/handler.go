package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/auth"
	"pharmadesk/m/internal/config"
	"pharmadesk/m/internal/metrics"
	"pharmadesk/m/internal/payments"
	"pharmadesk/m/internal/store"
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Store     *store.Store
	Tokens    *auth.Tokens
	Blacklist auth.Blacklist
	Payments  payments.Gateway
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	HTTP      config.HTTPConfig
	Billing   config.BillingConfig
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	tokens    *auth.Tokens
	blacklist auth.Blacklist
	payments  payments.Gateway
	metrics   *metrics.Metrics
	log       *zap.Logger
	http      config.HTTPConfig
	billing   config.BillingConfig
	limiter   *auth.RateLimiter
	validate  *validator.Validate
}

// New constructs a Handler.
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Blacklist == nil {
		d.Blacklist = auth.NewMemoryBlacklist()
	}
	if d.Payments == nil {
		d.Payments = payments.NewStripe(d.Billing, d.Logger)
	}
	h := &Handler{
		store:     d.Store,
		tokens:    d.Tokens,
		blacklist: d.Blacklist,
		payments:  d.Payments,
		metrics:   d.Metrics,
		log:       d.Logger,
		http:      d.HTTP,
		billing:   d.Billing,
		validate:  newValidator(),
	}
	if d.HTTP.AuthRateLimitRequests > 0 {
		h.limiter = auth.NewRateLimiter(d.HTTP.AuthRateLimitRequests, d.HTTP.AuthRateLimitWindow)
	}
	return h
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.http.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if h.http.MaxBodySize > 0 {
		r.Use(middleware.RequestSize(h.http.MaxBodySize))
	}

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(h.rateLimit).Post("/register", h.register)
			r.With(h.rateLimit).Post("/login", h.login)
			r.Group(func(protected chi.Router) {
				protected.Use(h.authenticate)
				protected.Post("/logout", h.logout)
				protected.Post("/reset-password", h.resetPassword)
			})
		})

		r.Get("/billing/plans", h.listPlans)
		r.Post("/billing/webhooks/stripe", h.stripeWebhook)

		r.Group(func(pr chi.Router) {
			pr.Use(h.authenticate)

			pr.Get("/me", h.me)

			pr.Route("/billing", func(r chi.Router) {
				r.Use(h.require(domain.PermBillingManage))
				r.Get("/subscription", h.getSubscription)
				r.Get("/usage", h.usage)
				r.Post("/subscription/change", h.changePlan)
				r.Post("/subscription/cancel", h.cancelSubscription)
				r.Get("/invoices", h.listInvoices)
				r.Post("/invoices/{id}/checkout", h.checkout)
			})

			// Tenant data. Writes stop when the subscription lapses.
			pr.Group(func(tr chi.Router) {
				tr.Use(h.requireWritable)
				h.tenantRoutes(tr)
			})
		})
	})

	return r
}

func (h *Handler) tenantRoutes(r chi.Router) {
	r.Route("/organization", func(r chi.Router) {
		r.Get("/", h.getOrganization)
		r.With(h.require(domain.PermOrganizationManage)).Put("/", h.updateOrganization)
	})
	r.With(h.require(domain.PermBulkOrdersView, domain.PermBulkOrdersManage)).Get("/organizations/suppliers", h.supplierDirectory)

	r.Route("/branches", func(r chi.Router) {
		r.Get("/", h.listBranches)
		r.Get("/{id}", h.getBranch)
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermBranchesManage))
			r.Post("/", h.createBranch)
			r.Put("/{id}", h.updateBranch)
			r.Delete("/{id}", h.deleteBranch)
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(h.require(domain.PermUsersManage))
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Get("/{id}", h.getUser)
		r.Put("/{id}", h.updateUser)
		r.Post("/{id}/deactivate", h.deactivateUser)
	})

	r.Route("/roles", func(r chi.Router) {
		r.With(h.require(domain.PermRolesManage, domain.PermUsersManage)).Get("/", h.listRoles)
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermRolesManage))
			r.Post("/", h.createRole)
			r.Put("/{id}", h.updateRole)
			r.Delete("/{id}", h.deleteRole)
		})
	})

	r.Get("/medicines", h.searchMedicines)

	r.Route("/inventory", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermInventoryView, domain.PermInventoryManage))
			r.Get("/", h.listItems)
			r.Get("/low-stock", h.lowStock)
			r.Get("/expiry-alert", h.expiryAlerts)
			r.Get("/export", h.exportInventory)
			r.Get("/{id}", h.getItem)
			r.Get("/{id}/movements", h.itemMovements)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermInventoryManage))
			r.Post("/", h.createItem)
			r.Post("/import", h.importInventory)
			r.Put("/{id}", h.updateItem)
			r.Delete("/{id}", h.deleteItem)
			r.Post("/{id}/adjust", h.adjustStock)
			r.Put("/{id}/stock", h.setStock)
		})
	})

	r.Route("/suppliers", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermSuppliersView, domain.PermSuppliersManage))
			r.Get("/", h.listSuppliers)
			r.Get("/{id}", h.getSupplier)
			r.Get("/{id}/balance", h.supplierBalance)
			r.Get("/{id}/ledger", h.supplierLedger)
			r.Get("/{id}/statement.xlsx", h.supplierStatement)
			r.Get("/{id}/payments", h.listSupplierPayments)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermSuppliersManage))
			r.Post("/", h.createSupplier)
			r.Put("/{id}", h.updateSupplier)
			r.Delete("/{id}", h.deleteSupplier)
		})
		r.With(h.require(domain.PermPurchasesManage)).Post("/{id}/payments", h.paySupplier)
	})

	r.Route("/purchases", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermPurchasesView, domain.PermPurchasesManage))
			r.Get("/", h.listPurchases)
			r.Get("/{id}", h.getPurchase)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermPurchasesManage))
			r.Post("/", h.createPurchase)
			r.Post("/{id}/payments", h.payPurchase)
			r.Post("/{id}/losses", h.recordLosses)
			r.Post("/{id}/void", h.voidPurchase)
		})
	})

	r.Route("/bulk-orders", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermBulkOrdersView, domain.PermBulkOrdersManage))
			r.Get("/", h.listBulkOrders)
			r.Get("/{id}", h.getBulkOrder)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermBulkOrdersManage))
			r.Post("/", h.createBulkOrder)
			r.Post("/{id}/confirm", h.confirmBulkOrder)
			r.Post("/{id}/reject", h.rejectBulkOrder)
			r.Post("/{id}/cancel", h.cancelBulkOrder)
			r.Post("/{id}/dispatch", h.dispatchBulkOrder)
			r.Post("/{id}/deliver", h.deliverBulkOrder)
			r.Post("/{id}/payments", h.payBulkOrder)
		})
	})

	r.Route("/expense-categories", func(r chi.Router) {
		r.With(h.require(domain.PermExpensesView, domain.PermExpensesManage)).Get("/", h.listExpenseCategories)
		r.With(h.require(domain.PermExpensesManage)).Post("/", h.createExpenseCategory)
		r.With(h.require(domain.PermExpensesManage)).Delete("/{id}", h.deleteExpenseCategory)
	})

	r.Route("/expenses", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermExpensesView, domain.PermExpensesManage))
			r.Get("/", h.listExpenses)
			r.Get("/summary", h.expenseSummary)
			r.Get("/export", h.exportExpenses)
			r.Get("/{id}", h.getExpense)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermExpensesManage))
			r.Post("/", h.createExpense)
			r.Put("/{id}", h.updateExpense)
			r.Delete("/{id}", h.deleteExpense)
		})
	})

	r.Route("/sales", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermSalesView))
			r.Get("/", h.listSales)
			r.Get("/{id}", h.getSale)
			r.Get("/{id}/returns", h.listSaleReturns)
			r.Get("/{id}/receipt", h.saleReceipt)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermSalesCreate))
			r.Post("/", h.createSale)
			r.Post("/{id}/payments", h.paySale)
		})
		r.With(h.require(domain.PermSalesRefund)).Post("/{id}/returns", h.returnSale)
	})

	r.Route("/patients", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermPatientsView, domain.PermPatientsManage))
			r.Get("/", h.listPatients)
			r.Get("/{id}", h.getPatient)
			r.With(h.require(domain.PermSalesView)).Get("/{id}/sales", h.patientSales)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.require(domain.PermPatientsManage))
			r.Post("/", h.createPatient)
			r.Put("/{id}", h.updatePatient)
			r.Delete("/{id}", h.deletePatient)
		})
	})

	r.Route("/reports", func(r chi.Router) {
		r.Use(h.require(domain.PermReportsView))
		r.Get("/sales/daily", h.dailySales)
		r.Get("/sales/monthly", h.monthlySales)
		r.Get("/sales", h.salesReport)
		r.Get("/revenue-by-tier", h.revenueByTier)
		r.Get("/dashboard", h.dashboard)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// decode reads and validates a request body, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondCode(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": message, "code": code})
}

var statusByCode = map[string]int{
	domain.CodeNotFound:             http.StatusNotFound,
	domain.CodeForbidden:            http.StatusForbidden,
	domain.CodeInvalidInput:         http.StatusBadRequest,
	domain.CodeInvalidState:         http.StatusConflict,
	domain.CodeConflict:             http.StatusConflict,
	domain.CodeInsufficientStock:    http.StatusUnprocessableEntity,
	domain.CodeExceedsOutstanding:   http.StatusUnprocessableEntity,
	domain.CodeLimitReached:         http.StatusForbidden,
	domain.CodeSubscriptionInactive: http.StatusPaymentRequired,
}

// respondStoreError maps business errors to their status. Anything else is
// logged and hidden behind fallback.
func (h *Handler) respondStoreError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var de *domain.Error
	if errors.As(err, &de) {
		status, ok := statusByCode[de.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		respondCode(w, status, de.Code, de.Message)
		return
	}
	h.requestLog(r).Error(fallback, zap.Error(err))
	respondError(w, http.StatusInternalServerError, fallback)
}

func (h *Handler) now() time.Time {
	return h.store.Now()
}
