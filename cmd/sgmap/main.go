// sgmap - Security Group Usage Mapper
// List groups. Resolve services. Report.
package main

import "os"

func main() {
	os.Exit(Execute())
}
