package signin

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
)

// RouterCookieJar adapts a go-router context to CookieJar.
type RouterCookieJar struct {
	Ctx router.Context
}

// NewRouterCookieJar wraps ctx.
func NewRouterCookieJar(ctx router.Context) *RouterCookieJar {
	return &RouterCookieJar{Ctx: ctx}
}

func (j *RouterCookieJar) Get(name string) string {
	return j.Ctx.Cookies(name)
}

func (j *RouterCookieJar) Set(c CookieSpec) {
	j.Ctx.Cookie(&router.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  c.Expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// FiberCookieJar adapts a fiber context to CookieJar.
type FiberCookieJar struct {
	Ctx *fiber.Ctx
}

// NewFiberCookieJar wraps ctx.
func NewFiberCookieJar(ctx *fiber.Ctx) *FiberCookieJar {
	return &FiberCookieJar{Ctx: ctx}
}

func (j *FiberCookieJar) Get(name string) string {
	return j.Ctx.Cookies(name)
}

func (j *FiberCookieJar) Set(c CookieSpec) {
	j.Ctx.Cookie(&fiber.Cookie{
		Name:        c.Name,
		Value:       c.Value,
		Path:        c.Path,
		Domain:      c.Domain,
		Expires:     c.Expires,
		HTTPOnly:    c.HTTPOnly,
		Secure:      c.Secure,
		SameSite:    c.SameSite,
		SessionOnly: c.Expires.IsZero(),
	})
}
