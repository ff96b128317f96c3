// Package tour defines the record types, column partition, error taxonomy
// and small collaborator interfaces shared by every stage of the tour
// ingestion pipeline.
package tour
