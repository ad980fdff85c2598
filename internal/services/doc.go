// Package services holds the error classification shared by the stage
// collaborators and the clients under services/.
package services
