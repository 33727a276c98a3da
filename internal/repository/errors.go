// Package repository persists users, revocations and appointments in
// PostgreSQL. Sentinel errors defined here let handlers distinguish failure
// scenarios without inspecting driver errors: for example ErrForbidden maps
// to HTTP 403 while ErrEmailExists maps to 409.
package repository

import "errors"

// ErrEmailExists is returned when registration would duplicate an email.
var ErrEmailExists = errors.New("email already exists")

// ErrNICExists is returned when registration would duplicate a NIC number.
var ErrNICExists = errors.New("nic number already exists")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.
var ErrForbidden = errors.New("forbidden")

// ErrSlotFull is returned when an appointment slot has reached the
// service's capacity.
var ErrSlotFull = errors.New("slot is fully booked")
