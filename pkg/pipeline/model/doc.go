// Package model provides the small, dependency-free data structures shared
// between the pipeline runtime and its observability add-ons (measure and
// drawer): a description of an operator node and the Observer interface a
// pipeline notifies as operators are built and pulled.
package model
