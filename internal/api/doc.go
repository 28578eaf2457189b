// Package api serves the billing worker's admin HTTP surface: operational
// stats, cache and queue controls, billing configuration, manual cycle
// triggers, resource suspension and owner top-ups. Every /admin route
// requires the X-API-Key header.
package api
