package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"backoffice/pkg/menu"
	"backoffice/pkg/otel"
	"backoffice/pkg/stock"
)

var errBadReference = errors.New("invalid reference")

// checkReferences confirms the item's category and recipe ingredients
// exist and belong to the item's company.
func checkReferences(ctx context.Context, i menu.Item) error {
	if i.CategoryID != nil {
		c, err := menuRepo.GetCategory(ctx, *i.CategoryID)
		if errors.Is(err, menu.ErrCategoryNotFound) || (err == nil && c.CompanyID != i.CompanyID) {
			return fmt.Errorf("%w: unknown category %d", errBadReference, *i.CategoryID)
		}
		if err != nil {
			return err
		}
	}
	for _, l := range i.Recipe {
		ing, err := ingredients.Get(ctx, l.IngredientID)
		if errors.Is(err, stock.ErrNotFound) || (err == nil && ing.CompanyID != i.CompanyID) {
			return fmt.Errorf("%w: unknown ingredient %s", errBadReference, l.IngredientID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// saveMenuItem validates i and its references and passes it to save.
func saveMenuItem(w http.ResponseWriter, r *http.Request, i menu.Item, save func(context.Context, menu.Item) error) bool {
	ctx := r.Context()
	if err := i.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := checkReferences(ctx, i); err != nil {
		if errors.Is(err, errBadReference) {
			writeError(w, http.StatusBadRequest, err.Error())
			return false
		}
		log.Error(ctx, "check menu item references", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	if err := save(ctx, i); err != nil {
		if errors.Is(err, menu.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return false
		}
		log.Error(ctx, "save menu item", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	return true
}

// listMenuItemsHandler lists a company's menu.
// @Summary List menu items
// @Produce json
// @Param company_id query int false "Company ID" default(1)
// @Success 200 {array} menu.Item
// @Security ApiKeyAuth
// @Router /pos/menu-items [get]
func listMenuItemsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listMenuItemsHandler")
	defer span.End()

	cid, err := companyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company_id")
		return
	}
	items, err := menuRepo.List(ctx, cid)
	if err != nil {
		log.Error(ctx, "list menu items", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []menu.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// createMenuItemHandler adds a menu item.
// @Summary Create menu item
// @Accept json
// @Produce json
// @Param item body menu.Item true "Menu item"
// @Success 201 {object} menu.Item
// @Failure 400 {object} errorResponse
// @Security ApiKeyAuth
// @Router /pos/menu-items [post]
func createMenuItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "createMenuItemHandler")
	defer span.End()

	i := menu.Item{Active: true}
	if err := json.NewDecoder(r.Body).Decode(&i); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.CompanyID == 0 {
		i.CompanyID = defaultCompanyID
	}
	if i.Recipe == nil {
		i.Recipe = []menu.RecipeLine{}
	}
	i.CreatedAt = time.Now().UTC()
	if !saveMenuItem(w, r.WithContext(ctx), i, menuRepo.Create) {
		return
	}
	writeJSON(w, http.StatusCreated, i)
}

// getMenuItemHandler retrieves a menu item by ID.
// @Summary Get menu item
// @Produce json
// @Param id path string true "Menu item ID"
// @Success 200 {object} menu.Item
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /pos/menu-items/{id} [get]
func getMenuItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "getMenuItemHandler")
	defer span.End()

	i, err := menuRepo.Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, menu.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error(ctx, "get menu item", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, i)
}

// updateMenuItemHandler replaces a menu item.
// @Summary Update menu item
// @Accept json
// @Produce json
// @Param id path string true "Menu item ID"
// @Param item body menu.Item true "Menu item"
// @Success 200 {object} menu.Item
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /pos/menu-items/{id} [put]
func updateMenuItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "updateMenuItemHandler")
	defer span.End()

	var i menu.Item
	if err := json.NewDecoder(r.Body).Decode(&i); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	i.ID = mux.Vars(r)["id"]
	if i.CompanyID == 0 {
		i.CompanyID = defaultCompanyID
	}
	if i.Recipe == nil {
		i.Recipe = []menu.RecipeLine{}
	}
	if !saveMenuItem(w, r.WithContext(ctx), i, menuRepo.Update) {
		return
	}
	writeJSON(w, http.StatusOK, i)
}

// deleteMenuItemHandler removes a menu item.
// @Summary Delete menu item
// @Param id path string true "Menu item ID"
// @Success 204
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /pos/menu-items/{id} [delete]
func deleteMenuItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "deleteMenuItemHandler")
	defer span.End()

	if err := menuRepo.Delete(ctx, mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, menu.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error(ctx, "delete menu item", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func categoryID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

// listCategoriesHandler lists a company's menu categories.
// @Summary List categories
// @Produce json
// @Param company_id query int false "Company ID" default(1)
// @Success 200 {array} menu.Category
// @Security ApiKeyAuth
// @Router /pos/categories [get]
func listCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listCategoriesHandler")
	defer span.End()

	cid, err := companyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company_id")
		return
	}
	list, err := menuRepo.ListCategories(ctx, cid)
	if err != nil {
		log.Error(ctx, "list categories", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []menu.Category{}
	}
	writeJSON(w, http.StatusOK, list)
}

// createCategoryHandler adds a menu category.
// @Summary Create category
// @Accept json
// @Produce json
// @Param category body menu.Category true "Category"
// @Success 201 {object} menu.Category
// @Failure 400 {object} errorResponse
// @Security ApiKeyAuth
// @Router /pos/categories [post]
func createCategoryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "createCategoryHandler")
	defer span.End()

	var c menu.Category
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.Name == "" {
		writeError(w, http.StatusBadRequest, "category name required")
		return
	}
	if c.CompanyID == 0 {
		c.CompanyID = defaultCompanyID
	}
	c.CreatedAt = time.Now().UTC()
	if err := menuRepo.CreateCategory(ctx, &c); err != nil {
		log.Error(ctx, "create category", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// updateCategoryHandler renames a category.
// @Summary Update category
// @Accept json
// @Produce json
// @Param id path int true "Category ID"
// @Param category body menu.Category true "Category"
// @Success 200 {object} menu.Category
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /pos/categories/{id} [put]
func updateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "updateCategoryHandler")
	defer span.End()

	id, ok := categoryID(r)
	if !ok {
		writeError(w, http.StatusNotFound, menu.ErrCategoryNotFound.Error())
		return
	}
	var c menu.Category
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.Name == "" {
		writeError(w, http.StatusBadRequest, "category name required")
		return
	}
	c.ID = id
	if c.CompanyID == 0 {
		c.CompanyID = defaultCompanyID
	}
	if err := menuRepo.UpdateCategory(ctx, c); err != nil {
		if errors.Is(err, menu.ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error(ctx, "update category", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// deleteCategoryHandler removes a category and unfiles its items.
// @Summary Delete category
// @Param id path int true "Category ID"
// @Success 204
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /pos/categories/{id} [delete]
func deleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "deleteCategoryHandler")
	defer span.End()

	id, ok := categoryID(r)
	if !ok {
		writeError(w, http.StatusNotFound, menu.ErrCategoryNotFound.Error())
		return
	}
	if err := menuRepo.DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, menu.ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error(ctx, "delete category", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
