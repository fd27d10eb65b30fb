package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/report"
)

type consumeRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 20, 100)
	products, err := a.service.SearchProducts(r.Context(), query, limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), r.PathValue("id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListBatches(w http.ResponseWriter, r *http.Request) {
	lots, err := a.service.ListCostLots(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lots": lots})
}

func (a *API) handleAddBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	lot, err := a.service.AddProductBatch(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"lot": lot})
}

func (a *API) handleConsumeFIFO(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	alloc, err := a.service.ConsumeFIFO(r.Context(), r.PathValue("id"), req.Quantity)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"allocation":       alloc,
		"total_cost_cents": alloc.TotalCostCents(),
	})
}

func (a *API) handleReportLoss(w http.ResponseWriter, r *http.Request) {
	var req domain.LossReportRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	loss, err := a.service.ReportProductLoss(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"loss": loss})
}

func (a *API) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 30, 30)
	history, err := a.service.ListPriceHistory(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (a *API) handleBarcodeLookup(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.LookupBarcode(r.Context(), r.PathValue("code"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleOpenShift(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftOpenRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	shift, err := a.service.OpenShift(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"shift": shift})
}

func (a *API) handleListShifts(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && status != domain.ShiftStatusClosed {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported status filter %q", status))
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 5, 100)
	shifts, err := a.service.ListClosedShifts(r.Context(), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shifts": shifts})
}

func (a *API) handleCurrentShift(w http.ResponseWriter, r *http.Request) {
	current, err := a.service.GetCurrentShift(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (a *API) handleCloseShift(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftCloseRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	shift, err := a.service.CloseShift(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
}

func (a *API) handleDeleteShift(w http.ResponseWriter, r *http.Request) {
	if !a.requireManagerPIN(w, r) {
		return
	}
	if err := a.service.DeleteShift(r.Context(), r.PathValue("id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleShiftTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := a.service.ListShiftTransactions(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (a *API) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	tx, err := a.service.AddTransaction(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (a *API) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleProcessSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	tx, err := a.service.ProcessSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (a *API) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := a.service.GetBalances(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (a *API) handleContainerTransactions(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	txs, err := a.service.ListContainerTransactions(r.Context(), r.PathValue("container"), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (a *API) handleContainerMovement(w http.ResponseWriter, r *http.Request) {
	var req domain.ContainerMovementRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	tx, err := a.service.AddContainerMovement(r.Context(), r.PathValue("container"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (a *API) handleShiftReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result, err := a.service.ShiftReport(r.Context(), query.Get("from"), query.Get("to"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	filename := fmt.Sprintf("turnos-%s-%s", result.From, result.To)
	switch strings.ToLower(strings.TrimSpace(query.Get("format"))) {
	case "", "json":
		writeJSON(w, http.StatusOK, result)
	case "csv":
		body, err := report.ShiftCSV(result)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".csv"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	case "xlsx":
		var buf bytes.Buffer
		if err := report.WriteShiftXLSX(&buf, result); err != nil {
			a.writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".xlsx"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	default:
		writeError(w, http.StatusBadRequest, errors.New("format must be json, csv or xlsx"))
	}
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	metrics, err := a.service.DashboardMetrics(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (a *API) handleListLosses(w http.ResponseWriter, r *http.Request) {
	losses, err := a.service.ListProductLosses(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"losses": losses})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), r.URL.Query().Get("date"), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"employees": a.auth.ListEmployees(r.Context())})
}

func (a *API) handleSetEmployeeStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.EmployeeStatusRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	employee, err := a.auth.SetEmployeeActive(r.Context(), r.PathValue("username"), *req.Active)
	if err != nil {
		if errors.Is(err, ErrEmployeeNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee": employee})
}

func (a *API) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req domain.EmployeeCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	employee, err := a.auth.CreateEmployee(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"employee": employee})
}
