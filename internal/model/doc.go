// Package model holds the records, enums and error taxonomy shared by the
// settlement engine and its collaborators.
package model
