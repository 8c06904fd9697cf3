// Command geohive serves and maintains a geodata API.
package main

func main() {
	Execute()
}
