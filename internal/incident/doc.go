// Package incident provides the business boundary for incidents: named,
// annotated collections of map feature references. It defines the Service
// (validation, id assignment, notification), the Store interface, and the
// domain models shared by the HTTP API, the stores and the API client.
package incident
