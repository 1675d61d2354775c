// Package steamstore implements a metadata provider backed by the Steam
// storefront appdetails endpoint. Only Steam titles with a numeric app id are
// supported.
package steamstore
