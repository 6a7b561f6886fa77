package api

import (
	"net/http"
	"net/url"
	"strconv"

	"shop-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *Handler) getCategory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	category, err := h.catalog.GetCategory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *Handler) createCategory(c *gin.Context) {
	var in service.CategoryInput
	if !bindJSON(c, &in) {
		return
	}
	category, err := h.catalog.CreateCategory(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *Handler) updateCategory(partial bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var in service.CategoryInput
		if !bindJSON(c, &in) {
			return
		}
		category, err := h.catalog.UpdateCategory(c.Request.Context(), id, in, partial)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, category)
	}
}

func (h *Handler) deleteCategory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteCategory(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listProducts supports ?category_id=, ?search=, ?ordering=[-]unit_price and ?page=
func (h *Handler) listProducts(c *gin.Context) {
	query := service.ProductQuery{
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
		Page:     1,
		PageSize: h.pageSize,
	}
	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(c, service.NewValidationError("category_id", "Enter a whole number."))
			return
		}
		query.CategoryID = id
	}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			respondError(c, service.ErrNotFound)
			return
		}
		query.Page = page
	}

	page, err := h.catalog.ListProducts(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    page.Count,
		"next":     pageLink(c.Request.URL, query.Page+1, query.Page*query.PageSize < page.Count),
		"previous": pageLink(c.Request.URL, query.Page-1, query.Page > 1),
		"results":  page.Results,
	})
}

func pageLink(u *url.URL, page int, exists bool) *string {
	if !exists {
		return nil
	}
	q := u.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	link := *u
	link.RawQuery = q.Encode()
	s := link.RequestURI()
	return &s
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var in service.ProductInput
	if !bindJSON(c, &in) {
		return
	}
	product, err := h.catalog.CreateProduct(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(partial bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var in service.ProductInput
		if !bindJSON(c, &in) {
			return
		}
		product, err := h.catalog.UpdateProduct(c.Request.Context(), id, in, partial)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listProductImages(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	images, err := h.catalog.ListProductImages(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, images)
}

type addImageRequest struct {
	Image string `json:"image" binding:"required"`
}

func (h *Handler) addProductImage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req addImageRequest
	if !bindJSON(c, &req) {
		return
	}
	image, err := h.catalog.AddProductImage(c.Request.Context(), id, req.Image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, image)
}

func (h *Handler) deleteProductImage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	imageID, ok := pathID(c, "image_id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteProductImage(c.Request.Context(), id, imageID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
