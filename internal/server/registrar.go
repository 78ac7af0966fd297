package server

import "google.golang.org/grpc"

// Registrar attaches one service to a gRPC server.
type Registrar interface {
	Register(s *grpc.Server)
}

// RegistrarFunc adapts a plain function, e.g. a generated Register*Server
// call bound to its implementation, into a Registrar.
type RegistrarFunc func(s *grpc.Server)

// Register calls f(s).
func (f RegistrarFunc) Register(s *grpc.Server) { f(s) }
