package main

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kdudkov/tileview/pkg/model"
	"github.com/kdudkov/tileview/pkg/planner"
	"github.com/kdudkov/tileview/pkg/session"
	"github.com/kdudkov/tileview/pkg/store"
)

func NewHttp(app *App) *fiber.App {
	f := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		EnablePrintRoutes:     false,
	})

	if app.cfg.Debug {
		f.Use(logger.New(logger.Config{
			Format: "[${ip}]:${port} ${status} - ${method} ${path} ${queryParams}\n",
		}))
	}

	f.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))

	f.Get("/sources", getSourcesHandler(app))
	f.Get("/stats", getStatsHandler(app))
	f.Get("/plan/:source", getPlanHandler(app))
	f.Get("/tiles/:source/:zoom/:x/:y", getTileHandler(app))
	f.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return f
}

func getSourcesHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		r := make([]map[string]any, 0)

		for _, s := range app.sessions.Sorted() {
			src := s.Source()
			r = append(r, map[string]any{
				"key":      src.Key,
				"name":     src.Name,
				"url":      "/tiles/" + url.QueryEscape(src.Key) + "/{z}/{x}/{y}",
				"min_zoom": src.MinZoom,
				"max_zoom": src.MaxZoom,
			})
		}

		return c.JSON(r)
	}
}

func getStatsHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		r := make([]session.Stats, 0)

		for _, s := range app.sessions.Sorted() {
			r = append(r, s.Stats())
		}

		return c.JSON(r)
	}
}

func getSession(app *App, c *fiber.Ctx) (*session.Session, error) {
	key, _ := url.QueryUnescape(c.Params("source"))

	s, ok := app.sessions.Get(key)
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "source "+key+" is not found")
	}

	return s, nil
}

type planItem struct {
	Zoom   int     `json:"z"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Layer  int     `json:"layer"`
	Scale  float64 `json:"scale"`
	Loaded bool    `json:"loaded"`
}

type planResponse struct {
	Ranges   []planner.Range `json:"ranges"`
	Items    []planItem      `json:"items"`
	Capacity int             `json:"capacity"`
	Resolved int             `json:"resolved"`
	Enqueued int             `json:"enqueued"`
}

func getPlanHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		s, err := getSession(app, c)
		if err != nil {
			return err
		}

		vp := planner.Viewport{
			OffsetX: c.QueryFloat("x"),
			OffsetY: c.QueryFloat("y"),
			Width:   c.QueryFloat("w", 800),
			Height:  c.QueryFloat("h", 600),
			Zoom:    c.QueryInt("zoom"),
		}

		if vp.Zoom < 0 || vp.Zoom > 30 || vp.Width <= 0 || vp.Height <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid viewport")
		}

		if p := c.Query("prev"); p != "" {
			prev, err := strconv.Atoi(p)
			if err != nil || prev < 0 || prev > 30 {
				return fiber.NewError(fiber.StatusBadRequest, "invalid prev zoom")
			}

			vp.PrevZoom = &prev
		}

		plan := s.Plan(vp)

		res := planResponse{
			Ranges:   plan.Ranges,
			Items:    make([]planItem, 0, len(plan.Items)),
			Capacity: plan.Capacity,
			Resolved: len(plan.Resolved),
			Enqueued: plan.Enqueued,
		}

		for _, it := range plan.Items {
			res.Items = append(res.Items, planItem{
				Zoom:   it.Address.Z,
				X:      it.Address.X,
				Y:      it.Address.Y,
				Layer:  it.Layer,
				Scale:  it.Scale,
				Loaded: it.Tile.Loaded(),
			})
		}

		return c.JSON(res)
	}
}

func getTileHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var err error
		var zoom, x, y int

		s, err := getSession(app, c)
		if err != nil {
			return err
		}

		if zoom, err = c.ParamsInt("zoom"); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid zoom value")
		}

		if x, err = c.ParamsInt("x"); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid x value")
		}

		if y, err = c.ParamsInt("y"); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid y value")
		}

		data, err := s.Lookup(model.NewAddress(x, y, zoom))

		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.Set("Retry-After", "1")
				return c.Status(fiber.StatusNotFound).SendString("not found")
			}

			app.logger.Errorw("error getting tile", "source", s.Source().Key, "error", err)
			return err
		}

		c.Set("Content-Type", s.Source().ContentType())

		return c.Send(data)
	}
}
