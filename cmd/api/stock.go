package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"backoffice/pkg/otel"
	"backoffice/pkg/stock"
)

const defaultCompanyID = 1

// companyID reads the company_id query parameter, defaulting to the
// first tenant.
func companyID(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("company_id")
	if v == "" {
		return defaultCompanyID, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// listIngredientsHandler lists a company's stock.
// @Summary List ingredients
// @Produce json
// @Param company_id query int false "Company ID" default(1)
// @Param below_threshold query bool false "Only items that need reordering"
// @Success 200 {array} stock.Ingredient
// @Failure 400 {object} errorResponse
// @Security ApiKeyAuth
// @Router /stock/ingredients [get]
func listIngredientsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listIngredientsHandler")
	defer span.End()

	cid, err := companyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company_id")
		return
	}
	var lowOnly bool
	if v := r.URL.Query().Get("below_threshold"); v != "" {
		if lowOnly, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid below_threshold")
			return
		}
	}
	items, err := ingredients.List(ctx, cid)
	if err != nil {
		log.Error(ctx, "list ingredients", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]stock.Ingredient, 0, len(items))
	for _, i := range items {
		if !lowOnly || i.BelowThreshold() {
			out = append(out, i)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// createIngredientHandler adds an ingredient to stock.
// @Summary Create ingredient
// @Accept json
// @Produce json
// @Param ingredient body stock.Ingredient true "Ingredient"
// @Success 201 {object} stock.Ingredient
// @Failure 400 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Security ApiKeyAuth
// @Router /stock/ingredients [post]
func createIngredientHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "createIngredientHandler")
	defer span.End()

	var i stock.Ingredient
	if err := json.NewDecoder(r.Body).Decode(&i); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if i.CompanyID == 0 {
		i.CompanyID = defaultCompanyID
	}
	if err := i.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ingredients.Create(ctx, i); err != nil {
		if errors.Is(err, stock.ErrExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Error(ctx, "create ingredient", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	created, err := ingredients.Get(ctx, i.ID)
	if err != nil {
		created = i
	}
	writeJSON(w, http.StatusCreated, created)
}

// getIngredientHandler retrieves an ingredient by ID.
// @Summary Get ingredient
// @Produce json
// @Param id path string true "Ingredient ID"
// @Success 200 {object} stock.Ingredient
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /stock/ingredients/{id} [get]
func getIngredientHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "getIngredientHandler")
	defer span.End()

	i, err := ingredients.Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, stock.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error(ctx, "get ingredient", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, i)
}

// updateIngredientHandler edits an ingredient's name, unit and reorder
// threshold. Quantities are corrected through stock counts.
// @Summary Update ingredient
// @Accept json
// @Produce json
// @Param id path string true "Ingredient ID"
// @Param ingredient body stock.Ingredient true "Ingredient"
// @Success 200 {object} stock.Ingredient
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /stock/ingredients/{id} [put]
func updateIngredientHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "updateIngredientHandler")
	defer span.End()

	var i stock.Ingredient
	if err := json.NewDecoder(r.Body).Decode(&i); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	i.ID = mux.Vars(r)["id"]
	if i.CompanyID == 0 {
		i.CompanyID = defaultCompanyID
	}
	if err := i.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ingredients.Update(ctx, i); err != nil {
		if errors.Is(err, stock.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error(ctx, "update ingredient", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	updated, err := ingredients.Get(ctx, i.ID)
	if err != nil {
		updated = i
	}
	writeJSON(w, http.StatusOK, updated)
}

// deleteIngredientHandler removes an ingredient.
// @Summary Delete ingredient
// @Param id path string true "Ingredient ID"
// @Success 204
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /stock/ingredients/{id} [delete]
func deleteIngredientHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "deleteIngredientHandler")
	defer span.End()

	if err := ingredients.Delete(ctx, mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, stock.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error(ctx, "delete ingredient", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listCountsHandler lists the stock count history, newest first.
// @Summary List stock counts
// @Produce json
// @Param company_id query int false "Company ID" default(1)
// @Param ingredient_id query string false "Ingredient ID"
// @Success 200 {array} stock.Count
// @Security ApiKeyAuth
// @Router /stock/counts [get]
func listCountsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listCountsHandler")
	defer span.End()

	cid, err := companyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company_id")
		return
	}
	list, err := counts.ListCounts(ctx, cid, r.URL.Query().Get("ingredient_id"))
	if err != nil {
		log.Error(ctx, "list stock counts", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []stock.Count{}
	}
	writeJSON(w, http.StatusOK, list)
}

// createCountHandler records a physical count and moves the ingredient's
// stock to the counted quantity.
// @Summary Record stock count
// @Accept json
// @Produce json
// @Param count body stock.Count true "Count"
// @Success 201 {object} stock.Count
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Security ApiKeyAuth
// @Router /stock/counts [post]
func createCountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "createCountHandler")
	defer span.End()

	var c stock.Count
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if c.CompanyID == 0 {
		c.CompanyID = defaultCompanyID
	}
	if err := c.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ing, err := ingredients.Get(ctx, c.IngredientID)
	if err != nil || ing.CompanyID != c.CompanyID {
		if err == nil || errors.Is(err, stock.ErrNotFound) {
			writeError(w, http.StatusNotFound, stock.ErrNotFound.Error())
			return
		}
		log.Error(ctx, "get ingredient", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	prev, err := stock.Recount(ctx, ingredients, c.IngredientID, c.Counted)
	if err != nil {
		if errors.Is(err, stock.ErrCountConflict) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Error(ctx, "apply stock count", "ingredient_id", c.IngredientID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.ID = 0
	c.Previous = prev
	c.CountedBy = userFrom(ctx)
	c.CountedAt = time.Now().UTC()
	if err := counts.AddCount(ctx, &c); err != nil {
		log.Error(ctx, "record stock count", "ingredient_id", c.IngredientID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Info(ctx, "stock counted", "ingredient_id", c.IngredientID,
		"previous", prev.String(), "counted", c.Counted.String(), "user", c.CountedBy)
	writeJSON(w, http.StatusCreated, c)
}
